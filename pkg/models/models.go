package models

import (
	"time"
)

// ── Chat Request ─────────────────────────────────────────────

// ChatRequest is the body of POST /v1/chat.
//
// Messages is chronological and must be non-empty. APIKey is forwarded
// verbatim to the selected provider for the duration of the request and
// is never persisted.
type ChatRequest struct {
	Messages   []ChatMessage `json:"messages"`
	AgentID    string        `json:"agentId,omitempty"`
	AgentName  string        `json:"agentName,omitempty"`
	AgentTools []string      `json:"agentTools,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	APIKey     string        `json:"apiKey,omitempty"`
	UserID     string        `json:"userId,omitempty"`
}

// ChatMessage is a single conversation turn. Role is one of
// "system", "user", "assistant" or "tool". ToolCalls and ToolCallID
// only appear on the transcript messages the tool loop appends.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ── Tool Calling ─────────────────────────────────────────────

// ToolCall is a function invocation requested by the model. Arguments
// is the raw JSON string exactly as the provider streamed it.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one invocable tool in the wire shape the
// OpenAI-style providers expect.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ── Stream Envelope ──────────────────────────────────────────

// StreamChunk is the uniform SSE payload emitted to the client for every
// provider: {"choices":[{"delta":{"content":"..."}}]}. The terminal
// marker is the literal line "data: [DONE]", not a chunk.
type StreamChunk struct {
	Choices []StreamChoice `json:"choices"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ContentChunk wraps a delta in the uniform envelope.
func ContentChunk(text string) StreamChunk {
	return StreamChunk{Choices: []StreamChoice{{Delta: StreamDelta{Content: text}}}}
}

// ── User Settings ────────────────────────────────────────────

// UserSettings holds per-user credentials for tool connectors and
// providers, keyed by the caller-supplied user ID. Known APIKeys keys:
// "serper", "firecrawl", "google_maps", "openai", "smtp_host",
// "smtp_port", "smtp_username", "smtp_password", "smtp_from".
type UserSettings struct {
	UserID    string            `json:"user_id"`
	APIKeys   map[string]string `json:"api_keys"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Redacted returns a copy safe to return from the API: key values are
// masked down to a short prefix.
func (s *UserSettings) Redacted() *UserSettings {
	cp := *s
	cp.APIKeys = make(map[string]string, len(s.APIKeys))
	for k, v := range s.APIKeys {
		if len(v) > 4 {
			cp.APIKeys[k] = v[:4] + "****"
		} else if v != "" {
			cp.APIKeys[k] = "****"
		}
	}
	return &cp
}

// ── Chat Records ─────────────────────────────────────────────

// ChatRecord is the per-turn summary written after a chat stream
// completes. Prompt and Answer are bounded excerpts, not full
// transcripts.
type ChatRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Answer    string    `json:"answer"`
	ToolCalls int       `json:"tool_calls"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Guardrails ───────────────────────────────────────────────

type GuardrailStage string

const (
	StageInput  GuardrailStage = "input"
	StageOutput GuardrailStage = "output"
	StageBoth   GuardrailStage = "both"
)

type GuardrailAction string

const (
	ActionBlock GuardrailAction = "block"
	ActionFlag  GuardrailAction = "flag"
)

// GuardrailRule is one configured screening rule. Config is
// kind-specific (keyword lists, patterns, limits, expressions).
type GuardrailRule struct {
	Name    string                 `json:"name"`
	Kind    string                 `json:"kind"`
	Stage   GuardrailStage         `json:"stage"`
	Action  GuardrailAction        `json:"action"`
	Message string                 `json:"message,omitempty"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// GuardrailVerdict is the outcome of evaluating one rule.
type GuardrailVerdict struct {
	Rule    string          `json:"rule"`
	Action  GuardrailAction `json:"action"`
	Matched bool            `json:"matched"`
	Message string          `json:"message,omitempty"`
}
