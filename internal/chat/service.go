// Package chat orchestrates one streaming chat turn: request
// validation, guardrail screening, tool resolution, the provider call,
// the bounded tool round-trip and the final relay to the consumer.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelrelay/modelrelay/gateway/internal/provider"
	"github.com/modelrelay/modelrelay/gateway/internal/relay"
	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/modelrelay/modelrelay/gateway/internal/tools"
	"github.com/modelrelay/modelrelay/gateway/pkg/contracts"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// maxExcerpt bounds the prompt and answer text kept in chat records.
const maxExcerpt = 2000

// ValidationError marks a request rejected before any upstream call was
// made. Handlers map it to HTTP 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Upstream performs provider HTTP calls. *upstream.Caller is the
// production implementation.
type Upstream interface {
	Do(ctx context.Context, providerID string, req *http.Request) (*http.Response, error)
}

// ToolRunner executes resolved tool calls. *tools.Executor is the
// production implementation.
type ToolRunner interface {
	Credentials(ctx context.Context, userID string) tools.Credentials
	ExecuteAll(ctx context.Context, calls []models.ToolCall, creds tools.Credentials) []tools.Result
}

// Service implements contracts.ChatService.
type Service struct {
	upstream   Upstream
	tools      ToolRunner
	guardrails contracts.GuardrailService
	store      store.Store
	lovableKey string
}

// New wires a chat service.
func New(up Upstream, exec ToolRunner, g contracts.GuardrailService, s store.Store, lovableKey string) *Service {
	return &Service{
		upstream:   up,
		tools:      exec,
		guardrails: g,
		store:      s,
		lovableKey: lovableKey,
	}
}

// Stream runs a full chat turn. Content chunks are forwarded through
// emit as they arrive from the provider. When the first call requests
// tools, all of them are executed and exactly one follow-up call is
// made; tool requests in the follow-up are ignored.
func (s *Service) Stream(ctx context.Context, req *models.ChatRequest, emit contracts.EmitFunc) error {
	start := time.Now()

	desc, adapter, input, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}

	log.Info().
		Str("provider", desc.ID).
		Str("model", input.Model).
		Int("messages", len(input.Messages)).
		Int("tools", len(input.Tools)).
		Str("user", req.UserID).
		Msg("Chat turn started")

	var answer strings.Builder
	acc := provider.NewAccumulator()
	if err := s.call(ctx, desc, adapter, input, emit, &answer, acc); err != nil {
		return err
	}

	var toolCalls []models.ToolCall
	if !acc.Empty() {
		toolCalls = acc.Calls()

		log.Info().
			Str("provider", desc.ID).
			Int("count", len(toolCalls)).
			Msg("Executing tool calls")

		creds := s.tools.Credentials(ctx, req.UserID)
		results := s.tools.ExecuteAll(ctx, toolCalls, creds)

		input.Messages = append(input.Messages, models.ChatMessage{
			Role:      "assistant",
			ToolCalls: toolCalls,
		})
		for _, r := range results {
			input.Messages = append(input.Messages, models.ChatMessage{
				Role:       "tool",
				ToolCallID: r.CallID,
				Content:    r.Content,
			})
		}

		followup := provider.NewAccumulator()
		if err := s.call(ctx, desc, adapter, input, emit, &answer, followup); err != nil {
			return err
		}
		if !followup.Empty() {
			log.Warn().
				Str("provider", desc.ID).
				Int("count", len(followup.Calls())).
				Msg("Ignoring tool calls past the single round-trip")
		}
	}

	s.screenOutput(ctx, req, answer.String())
	s.record(ctx, req, desc.ID, input.Model, answer.String(), len(toolCalls))

	log.Info().
		Str("provider", desc.ID).
		Int("tool_calls", len(toolCalls)).
		Int("answer_chars", answer.Len()).
		Dur("duration", time.Since(start)).
		Msg("Chat turn complete")

	return nil
}

// prepare validates the request and assembles everything the provider
// call needs. All failure paths here happen before any network I/O.
func (s *Service) prepare(ctx context.Context, req *models.ChatRequest) (provider.Descriptor, provider.Adapter, provider.CallInput, error) {
	var input provider.CallInput

	if len(req.Messages) == 0 {
		return provider.Descriptor{}, nil, input, validationf("messages must not be empty")
	}
	for i, m := range req.Messages {
		if m.Role == "" {
			return provider.Descriptor{}, nil, input, validationf("message %d: role is required", i)
		}
	}

	providerID := req.Provider
	if providerID == "" {
		providerID = provider.DefaultProvider
	}
	desc, ok := provider.Lookup(providerID)
	if !ok {
		return provider.Descriptor{}, nil, input, validationf("unknown provider: %s", providerID)
	}

	apiKey := req.APIKey
	if desc.RequiresKey && apiKey == "" {
		return provider.Descriptor{}, nil, input, validationf("provider %s requires an API key", desc.ID)
	}
	if !desc.RequiresKey && apiKey == "" {
		apiKey = s.lovableKey
	}

	if blocked, ok := s.screenInput(ctx, req, desc.ID); ok {
		return provider.Descriptor{}, nil, input, validationf("Request blocked by guardrail: %s", blocked.Message)
	}

	adapter, ok := provider.AdapterFor(desc.Dialect)
	if !ok {
		return provider.Descriptor{}, nil, input, fmt.Errorf("no adapter for dialect %s", desc.Dialect)
	}

	model := req.Model
	if model == "" {
		model = desc.DefaultModel
	}

	var defs []models.ToolDefinition
	if desc.SupportsTools && len(req.AgentTools) > 0 {
		defs = tools.Resolve(req.AgentTools)
	}

	system := "You are a helpful AI assistant."
	if req.AgentName != "" {
		system = fmt.Sprintf("You are %s, a helpful AI assistant.", req.AgentName)
	}

	input = provider.CallInput{
		Model:    model,
		System:   system,
		Messages: req.Messages,
		Tools:    defs,
		APIKey:   apiKey,
	}
	return desc, adapter, input, nil
}

// call performs one provider request and relays its stream. Text deltas
// go to the consumer and the answer buffer; tool call fragments go to
// the accumulator.
func (s *Service) call(ctx context.Context, desc provider.Descriptor, adapter provider.Adapter, input provider.CallInput, emit contracts.EmitFunc, answer *strings.Builder, acc *provider.Accumulator) error {
	httpReq, err := adapter.BuildRequest(ctx, desc, input)
	if err != nil {
		return fmt.Errorf("build %s request: %w", desc.ID, err)
	}

	resp, err := s.upstream.Do(ctx, desc.ID, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return relay.Stream(ctx, resp.Body, adapter, func(ev provider.Event) error {
		if ev.Delta != "" {
			answer.WriteString(ev.Delta)
			if err := emit(models.ContentChunk(ev.Delta)); err != nil {
				return err
			}
		}
		if len(ev.ToolCalls) > 0 {
			acc.Add(ev.ToolCalls)
		}
		return nil
	})
}

// screenInput evaluates input guardrails against the latest user
// message and reports the first blocking verdict.
func (s *Service) screenInput(ctx context.Context, req *models.ChatRequest, providerID string) (models.GuardrailVerdict, bool) {
	text := latestUserMessage(req.Messages)
	if text == "" {
		return models.GuardrailVerdict{}, false
	}

	verdicts := s.guardrails.EvaluateInput(ctx, text, guardrailMeta(req, providerID))
	for _, v := range verdicts {
		if v.Action != models.ActionBlock {
			log.Info().Str("rule", v.Rule).Str("stage", "input").Msg("Guardrail flagged message")
		}
	}
	return firstBlock(verdicts)
}

// screenOutput evaluates output guardrails against the full answer.
// The answer has already been streamed, so verdicts are advisory.
func (s *Service) screenOutput(ctx context.Context, req *models.ChatRequest, answer string) {
	if answer == "" {
		return
	}

	verdicts := s.guardrails.EvaluateOutput(ctx, answer, guardrailMeta(req, ""))
	for _, v := range verdicts {
		evt := log.Info()
		if v.Action == models.ActionBlock {
			evt = log.Warn()
		}
		evt.Str("rule", v.Rule).Str("stage", "output").Str("message", v.Message).Msg("Guardrail flagged response")
	}
}

// record persists the turn for later listing. Persistence failures are
// logged, never surfaced: the answer already reached the consumer.
func (s *Service) record(ctx context.Context, req *models.ChatRequest, providerID, model, answer string, toolCalls int) {
	rec := &models.ChatRecord{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		AgentID:   req.AgentID,
		AgentName: req.AgentName,
		Provider:  providerID,
		Model:     model,
		Prompt:    excerpt(latestUserMessage(req.Messages)),
		Answer:    excerpt(answer),
		ToolCalls: toolCalls,
		CreatedAt: time.Now().UTC(),
	}

	// The consumer may have disconnected already; the write should
	// still land.
	if err := s.store.CreateChatRecord(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("user", req.UserID).Msg("Recording chat turn failed")
	}
}

func guardrailMeta(req *models.ChatRequest, providerID string) map[string]string {
	return map[string]string{
		"provider": providerID,
		"agent":    req.AgentID,
		"user":     req.UserID,
	}
}

func firstBlock(verdicts []models.GuardrailVerdict) (models.GuardrailVerdict, bool) {
	for _, v := range verdicts {
		if v.Action == models.ActionBlock {
			return v, true
		}
	}
	return models.GuardrailVerdict{}, false
}

func latestUserMessage(msgs []models.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= maxExcerpt {
		return s
	}
	return string(runes[:maxExcerpt])
}
