package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/jobchat-go/internal/history"
	"github.com/comigor/jobchat-go/internal/logger"
)

type mockLLM struct {
	calls    []openai.ChatCompletionResponse
	err      error
	requests []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(_ context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured for request: " + r.Messages[0].Content)
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func textResponse(s string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s},
	}}}
}

func TestReplyUsesModel(t *testing.T) {
	store := history.Open("", logger.Discard())
	ctx := context.Background()
	_, err := store.Save(ctx, history.Message{SessionID: "s1", Role: "user", Content: "hi"})
	require.NoError(t, err)
	_, err = store.Save(ctx, history.Message{SessionID: "s1", Role: "bot", Content: "hello!"})
	require.NoError(t, err)

	m := &mockLLM{calls: []openai.ChatCompletionResponse{textResponse("  3 clerk jobs in Ludhiana  ")}}
	a := New(Options{Client: m, Model: "gpt-4o-mini", History: store, Logger: logger.Discard()})

	got := a.Reply(ctx, "s1", "govt clerk jobs in Ludhiana")
	require.Equal(t, "3 clerk jobs in Ludhiana", got)

	require.Len(t, m.requests, 1)
	req := m.requests[0]
	require.Equal(t, "gpt-4o-mini", req.Model)
	require.Equal(t, defaultSystemPrompt, req.Messages[0].Content)
	require.Contains(t, req.Messages[1].Content, "district: Ludhiana")
	require.Contains(t, req.Messages[2].Content, "User: hi\nAssistant: hello!")
	last := req.Messages[len(req.Messages)-1]
	require.Equal(t, openai.ChatMessageRoleUser, last.Role)
	require.Equal(t, "govt clerk jobs in Ludhiana", last.Content)
}

func TestReplyFallsBackOnModelError(t *testing.T) {
	m := &mockLLM{err: errors.New("quota exceeded")}
	a := New(Options{Client: m, Logger: logger.Discard()})

	got := a.Reply(context.Background(), "s1", "private jobs in Amritsar")
	require.Contains(t, got, "job type: Private")
	require.Contains(t, got, "district: Amritsar")
}

func TestReplyFallsBackOnEmptyChoice(t *testing.T) {
	m := &mockLLM{calls: []openai.ChatCompletionResponse{{}}}
	a := New(Options{Client: m, Logger: logger.Discard()})
	require.Contains(t, a.Reply(context.Background(), "s1", "hello"), "I'm here to help you find jobs in Punjab")
}

func TestReplyWithoutModel(t *testing.T) {
	a := New(Options{Logger: logger.Discard()})
	require.Contains(t, a.Reply(context.Background(), "s1", "hello"), "Find government jobs in Ludhiana")
	require.Contains(t, a.Welcome(), "Welcome to the Punjab Job Portal")
}

func TestCustomSystemPrompt(t *testing.T) {
	m := &mockLLM{calls: []openai.ChatCompletionResponse{textResponse("ok")}}
	a := New(Options{Client: m, SystemPrompt: "Be brief.", Logger: logger.Discard()})
	a.Reply(context.Background(), "s1", "hello")
	require.Equal(t, "Be brief.", m.requests[0].Messages[0].Content)
	require.Len(t, m.requests[0].Messages, 3, "no history configured")
}

func TestExtractCriteria(t *testing.T) {
	tests := []struct {
		msg  string
		want Criteria
	}{
		{"Find government jobs in Ludhiana", Criteria{JobType: "Government", District: "Ludhiana"}},
		{"Show private IT jobs for graduates", Criteria{JobType: "Private", Qualification: "Graduate"}},
		{"post graduate teacher, 5-10 years", Criteria{Qualification: "Post Graduate", Experience: "5-10 years", Keywords: "teacher"}},
		{"Jobs for 0-2 years in Amritsar", Criteria{Experience: "0-2 years", District: "Amritsar"}},
		{"clerk posts in fatehgarh sahib", Criteria{Keywords: "clerk", District: "Fatehgarh Sahib"}},
		{"hello there", Criteria{}},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			require.Equal(t, tt.want, ExtractCriteria(tt.msg))
		})
	}
	require.True(t, ExtractCriteria("hi").Empty())
	require.Equal(t, "general inquiry", Criteria{}.String())
}
