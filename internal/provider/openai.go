package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// openAIAdapter speaks the OpenAI chat-completions dialect, shared by
// openai, groq, mistral, together, openrouter, perplexity and the
// built-in lovable provider.
type openAIAdapter struct{}

func (a *openAIAdapter) Dialect() Dialect { return DialectOpenAI }

type openAIRequest struct {
	Model    string                  `json:"model"`
	Messages []models.ChatMessage    `json:"messages"`
	Stream   bool                    `json:"stream"`
	Tools    []models.ToolDefinition `json:"tools,omitempty"`
}

func (a *openAIAdapter) BuildRequest(ctx context.Context, desc Descriptor, in CallInput) (*http.Request, error) {
	msgs := in.Messages
	if in.System != "" {
		msgs = append([]models.ChatMessage{{Role: "system", Content: in.System}}, msgs...)
	}

	body, err := json.Marshal(openAIRequest{
		Model:    in.Model,
		Messages: msgs,
		Stream:   true,
		Tools:    in.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	applyAuth(req, desc.AuthStyle, in.APIKey)
	return req, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (a *openAIAdapter) ParseEvent(payload []byte) (Event, error) {
	var chunk openAIStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return Event{}, fmt.Errorf("openai: parse event: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return Event{}, nil
	}

	choice := chunk.Choices[0]
	ev := Event{Delta: choice.Delta.Content}
	for _, tc := range choice.Delta.ToolCalls {
		ev.ToolCalls = append(ev.ToolCalls, ToolCallDelta{
			Index:        tc.Index,
			ID:           tc.ID,
			Name:         tc.Function.Name,
			ArgsFragment: tc.Function.Arguments,
		})
	}
	return ev, nil
}
