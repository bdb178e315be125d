// Package assistant writes the bot side of a job portal conversation.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/jobchat-go/internal/history"
	"github.com/comigor/jobchat-go/internal/llm"
	"github.com/comigor/jobchat-go/internal/logger"
)

const defaultSystemPrompt = `You are a helpful job search assistant for the Punjab Job Portal. Your role is to help job seekers find relevant opportunities in Punjab, India.

Key Information:
- Available job types: Government, Private
- Qualifications: 12th Pass, Graduate, Post Graduate, Others
- Experience levels: 0-2 years, 2-5 years, 5-10 years, 10+ years
- All 25 districts of Punjab are covered

Always be helpful, friendly, and informative about Punjab employment opportunities. If you don't have specific information, guide them on how to search effectively.

Keep responses concise but informative. Use bullet points for job listings.`

// historyTurns is how many earlier messages are given to the model.
const historyTurns = 5

// History is the transcript source the assistant reads for context.
type History interface {
	List(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
}

// Assistant answers user messages. With no model configured, or when the
// model call fails, it answers from canned text instead.
type Assistant struct {
	client       llm.Client
	model        string
	systemPrompt string
	history      History
	log          *slog.Logger
}

// Options configure an Assistant. Every field is optional.
type Options struct {
	Client       llm.Client
	Model        string
	SystemPrompt string
	History      History
	Logger       *slog.Logger
}

// New creates an assistant.
func New(opts Options) *Assistant {
	prompt := opts.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultSystemPrompt
	}
	return &Assistant{
		client:       opts.Client,
		model:        opts.Model,
		systemPrompt: prompt,
		history:      opts.History,
		log:          logger.Or(opts.Logger).With("component", "assistant"),
	}
}

// Welcome is the greeting sent when a chat socket opens.
func (a *Assistant) Welcome() string {
	return `Welcome to the Punjab Job Portal! 🎯

Here's what I can help you with:

🔍 How to search for jobs:
• "Find government jobs in Ludhiana"
• "Show me software developer positions for graduates"
• "What are the highest paying jobs in Punjab?"
• "I need 2-5 years experience jobs in Amritsar"

💡 Tips:
• Be specific about your location (district)
• Mention your qualification level
• Include your experience level

How can I help you find your dream job today? 😊`
}

// Reply answers message within sessionID. It never fails; model errors are
// logged and answered with a canned reply.
func (a *Assistant) Reply(ctx context.Context, sessionID, message string) string {
	criteria := ExtractCriteria(message)
	if a.client == nil {
		return fallbackReply(criteria)
	}
	resp, err := a.complete(ctx, sessionID, message, criteria)
	if err != nil {
		a.log.Warn("model call failed; using fallback reply", "session_id", sessionID, "error", err)
		return fallbackReply(criteria)
	}
	return resp
}

func (a *Assistant) complete(ctx context.Context, sessionID, message string, criteria Criteria) (string, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt},
		{Role: openai.ChatMessageRoleSystem, Content: "User's search criteria: " + criteria.String()},
	}
	if recent := a.recent(ctx, sessionID); recent != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: recent})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	a.log.Debug("calling model", "session_id", sessionID, "model", a.model, "messages", len(msgs))
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("chat completion: empty content")
	}
	return content, nil
}

func (a *Assistant) recent(ctx context.Context, sessionID string) string {
	if a.history == nil {
		return ""
	}
	msgs, err := a.history.List(ctx, sessionID, historyTurns)
	if err != nil {
		a.log.Warn("could not load history for context", "session_id", sessionID, "error", err)
		return ""
	}
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range msgs {
		role := "Assistant"
		if m.Role == "user" {
			role = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}

func fallbackReply(c Criteria) string {
	if c.Empty() {
		return "I'm here to help you find jobs in Punjab! Please try asking about specific job types, locations, or qualifications. " +
			"For example: 'Find government jobs in Ludhiana' or 'Show me software developer positions'."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I'm searching with these details: %s.\n\n", c)
	b.WriteString("💡 Tips for job searching:\n")
	b.WriteString("• Be specific about your location and qualification\n")
	b.WriteString("• Check application deadlines\n")
	b.WriteString("• Apply early for better chances\n")
	b.WriteString("• Keep your resume updated\n\n")
	b.WriteString("Would you like to know more about any specific job or need help with applications?")
	return b.String()
}
