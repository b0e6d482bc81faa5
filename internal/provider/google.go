package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// googleAdapter speaks the Gemini generateContent dialect: role-mapped
// contents, a system_instruction field, and the key as a query
// parameter. The endpoint template carries the model name.
type googleAdapter struct{}

func (a *googleAdapter) Dialect() Dialect { return DialectGoogle }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	Contents          []googleContent `json:"contents"`
	SystemInstruction *googleContent  `json:"system_instruction,omitempty"`
}

func (a *googleAdapter) BuildRequest(ctx context.Context, desc Descriptor, in CallInput) (*http.Request, error) {
	system := in.System
	contents := make([]googleContent, 0, len(in.Messages))
	for _, m := range in.Messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "assistant":
			contents = append(contents, googleContent{Role: "model", Parts: []googlePart{{Text: m.Content}}})
		default:
			contents = append(contents, googleContent{Role: "user", Parts: []googlePart{{Text: m.Content}}})
		}
	}

	greq := googleRequest{Contents: contents}
	if system != "" {
		greq.SystemInstruction = &googleContent{Parts: []googlePart{{Text: system}}}
	}

	body, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("google: marshal request: %w", err)
	}

	url := fmt.Sprintf(desc.Endpoint, in.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	applyAuth(req, desc.AuthStyle, in.APIKey)
	return req, nil
}

type googleStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (a *googleAdapter) ParseEvent(payload []byte) (Event, error) {
	var chunk googleStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return Event{}, fmt.Errorf("google: parse event: %w", err)
	}
	if len(chunk.Candidates) == 0 {
		return Event{}, nil
	}

	cand := chunk.Candidates[0]
	var ev Event
	for _, p := range cand.Content.Parts {
		ev.Delta += p.Text
	}
	if cand.FinishReason != "" {
		ev.Done = true
	}
	return ev, nil
}
