package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// Anthropic requires max_tokens on every request.
const anthropicMaxTokens = 4096

// anthropicAdapter speaks the Anthropic Messages dialect: a dedicated
// system field, content-block messages, and event-typed stream frames.
type anthropicAdapter struct{}

func (a *anthropicAdapter) Dialect() Dialect { return DialectAnthropic }

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []anthropicBlock
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

func (a *anthropicAdapter) BuildRequest(ctx context.Context, desc Descriptor, in CallInput) (*http.Request, error) {
	system, msgs := anthropicMessages(in.Messages)
	if in.System != "" {
		if system != "" {
			system = in.System + "\n\n" + system
		} else {
			system = in.System
		}
	}

	var tools []anthropicTool
	for _, t := range in.Tools {
		tools = append(tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     in.Model,
		System:    system,
		Messages:  msgs,
		MaxTokens: anthropicMaxTokens,
		Stream:    true,
		Tools:     tools,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	applyAuth(req, desc.AuthStyle, in.APIKey)
	return req, nil
}

// anthropicMessages converts the normalized transcript. System-role
// messages lift into the system field; assistant tool calls become
// tool_use blocks; tool results become tool_result blocks, with
// consecutive results coalesced into one user message.
func anthropicMessages(in []models.ChatMessage) (string, []anthropicMessage) {
	system := ""
	out := make([]anthropicMessage, 0, len(in))

	for _, m := range in {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content

		case "tool":
			block := anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(out); n > 0 && out[n-1].Role == "user" {
				if blocks, ok := out[n-1].Content.([]anthropicBlock); ok && len(blocks) > 0 && blocks[0].Type == "tool_result" {
					out[n-1].Content = append(blocks, block)
					continue
				}
			}
			out = append(out, anthropicMessage{Role: "user", Content: []anthropicBlock{block}})

		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropicMessage{Role: "assistant", Content: m.Content})
				continue
			}
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: json.RawMessage(tc.Function.Arguments),
				})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})

		default:
			out = append(out, anthropicMessage{Role: m.Role, Content: m.Content})
		}
	}
	return system, out
}

type anthropicStreamEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

func (a *anthropicAdapter) ParseEvent(payload []byte) (Event, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("anthropic: parse event: %w", err)
	}

	switch ev.Type {
	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			return Event{ToolCalls: []ToolCallDelta{{
				Index: ev.Index,
				ID:    ev.ContentBlock.ID,
				Name:  ev.ContentBlock.Name,
			}}}, nil
		}

	case "content_block_delta":
		if ev.Delta == nil {
			break
		}
		switch ev.Delta.Type {
		case "text_delta":
			return Event{Delta: ev.Delta.Text}, nil
		case "input_json_delta":
			return Event{ToolCalls: []ToolCallDelta{{
				Index:        ev.Index,
				ArgsFragment: ev.Delta.PartialJSON,
			}}}, nil
		}

	case "message_stop":
		return Event{Done: true}, nil
	}

	// message_start, ping, content_block_stop, message_delta carry
	// nothing the relay forwards.
	return Event{}, nil
}
