package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// cohereAdapter speaks the Cohere v2 chat dialect. v2 accepts
// system/user/assistant roles directly; stream frames are typed, with
// text arriving in content-delta events.
type cohereAdapter struct{}

func (a *cohereAdapter) Dialect() Dialect { return DialectCohere }

type cohereMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cohereRequest struct {
	Model    string          `json:"model"`
	Messages []cohereMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

func (a *cohereAdapter) BuildRequest(ctx context.Context, desc Descriptor, in CallInput) (*http.Request, error) {
	msgs := make([]cohereMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		msgs = append(msgs, cohereMessage{Role: "system", Content: in.System})
	}
	for _, m := range in.Messages {
		msgs = append(msgs, cohereMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(cohereRequest{
		Model:    in.Model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cohere: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	applyAuth(req, desc.AuthStyle, in.APIKey)
	return req, nil
}

type cohereStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Message struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	} `json:"delta"`
}

func (a *cohereAdapter) ParseEvent(payload []byte) (Event, error) {
	var ev cohereStreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("cohere: parse event: %w", err)
	}

	switch ev.Type {
	case "content-delta":
		if ev.Delta != nil {
			return Event{Delta: ev.Delta.Message.Content.Text}, nil
		}
	case "message-end":
		return Event{Done: true}, nil
	}
	return Event{}, nil
}
