// Package contracts defines the service interfaces of the ModelRelay
// gateway.
//
// The Handlers struct in api/handlers depends on these interfaces rather
// than on concrete types, so swapping an implementation (a different
// sandbox engine, a stricter guardrail service) is a single line change
// in the wiring code (pkg/server).
package contracts

import (
	"context"

	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// Store is a type alias for the internal Store interface, exposed in
// pkg/ so embedding deployments can reference it without importing
// internal/ directly.
type Store = store.Store

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// ── Chat Service ────────────────────────────────────────────

// EmitFunc receives one normalized stream chunk. Returning an error
// stops the stream (the consumer went away).
type EmitFunc func(chunk models.StreamChunk) error

// ChatService runs one streaming chat turn end to end: validation,
// tool resolution, the provider call, the bounded tool round-trip and
// the final relay. Errors returned before the first emit carry an HTTP
// status classification; errors after it terminate the stream.
type ChatService interface {
	Stream(ctx context.Context, req *models.ChatRequest, emit EmitFunc) error
}

// ── Guardrail Service ───────────────────────────────────────

// GuardrailService screens chat text against the configured rules.
// EvaluateInput runs before the provider call and may block the
// request; EvaluateOutput runs on the accumulated answer and is
// advisory only.
type GuardrailService interface {
	EvaluateInput(ctx context.Context, text string, meta map[string]string) []models.GuardrailVerdict
	EvaluateOutput(ctx context.Context, text string, meta map[string]string) []models.GuardrailVerdict
}

// ── Sandbox Engine ──────────────────────────────────────────

// SandboxEngine executes short untrusted code snippets in isolation.
// Implementations must bound run time, memory and captured output.
type SandboxEngine interface {
	// Name returns the engine identifier ("docker", "disabled").
	Name() string

	// Run executes the snippet and returns its combined output.
	Run(ctx context.Context, language, code string) (string, error)
}
