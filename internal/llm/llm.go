package llm

import (
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/jobchat-go/internal/config"
)

// NewClient creates an OpenAI-compatible client. It returns nil when no model
// is configured, so callers fall back to canned replies.
func NewClient(cfg config.LLMConfig) Client {
	if !cfg.Enabled() {
		return nil
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(oc)
}
