package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// CallInput is the normalized request handed to an adapter. System is
// injected per dialect; Tools is nil for requests without tool support.
type CallInput struct {
	Model    string
	System   string
	Messages []models.ChatMessage
	Tools    []models.ToolDefinition
	APIKey   string
}

// ToolCallDelta is one streamed fragment of a function call. ID and
// Name arrive once per index; ArgsFragment arrives in pieces that
// concatenate into the full JSON arguments string.
type ToolCallDelta struct {
	Index        int
	ID           string
	Name         string
	ArgsFragment string
}

// Event is one normalized upstream stream event.
type Event struct {
	Delta     string
	ToolCalls []ToolCallDelta
	Done      bool
}

// Adapter translates between the gateway's normalized chat shape and
// one vendor wire dialect. Adapters are stateless; per-stream state
// (tool call reassembly) lives in Accumulator.
type Adapter interface {
	// Dialect returns the wire format this adapter speaks.
	Dialect() Dialect

	// BuildRequest produces the fully authenticated upstream HTTP
	// request with streaming enabled.
	BuildRequest(ctx context.Context, desc Descriptor, in CallInput) (*http.Request, error)

	// ParseEvent extracts the delta and any tool call fragments from
	// one SSE data payload.
	ParseEvent(payload []byte) (Event, error)
}

var adapters = map[Dialect]Adapter{
	DialectOpenAI:    &openAIAdapter{},
	DialectAnthropic: &anthropicAdapter{},
	DialectGoogle:    &googleAdapter{},
	DialectCohere:    &cohereAdapter{},
}

// AdapterFor returns the adapter for a dialect.
func AdapterFor(d Dialect) (Adapter, bool) {
	a, ok := adapters[d]
	return a, ok
}

// applyAuth attaches the key in the style the vendor requires.
func applyAuth(req *http.Request, style AuthStyle, key string) {
	switch style {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+key)
	case AuthAnthropic:
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", anthropicVersion)
	case AuthQueryKey:
		q := req.URL.Query()
		q.Set("key", key)
		req.URL.RawQuery = q.Encode()
	}
}

// ── Tool Call Accumulator ───────────────────────────────────

type partialCall struct {
	id   string
	name string
	args string
}

// Accumulator reassembles complete tool calls from streamed fragments,
// keyed by the vendor-reported index.
type Accumulator struct {
	byIndex map[int]*partialCall
}

func NewAccumulator() *Accumulator {
	return &Accumulator{byIndex: make(map[int]*partialCall)}
}

// Add folds the fragments of one event into the accumulator.
func (a *Accumulator) Add(deltas []ToolCallDelta) {
	for _, d := range deltas {
		p, ok := a.byIndex[d.Index]
		if !ok {
			p = &partialCall{}
			a.byIndex[d.Index] = p
		}
		if d.ID != "" {
			p.id = d.ID
		}
		if d.Name != "" {
			p.name = d.Name
		}
		p.args += d.ArgsFragment
	}
}

// Empty reports whether no tool call fragments have been seen.
func (a *Accumulator) Empty() bool { return len(a.byIndex) == 0 }

// Calls returns the completed tool calls ordered by index. Calls that
// never received an ID get a positional fallback; empty arguments
// become the empty JSON object so downstream parsing never sees "".
func (a *Accumulator) Calls() []models.ToolCall {
	indexes := make([]int, 0, len(a.byIndex))
	for i := range a.byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]models.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		p := a.byIndex[i]
		id := p.id
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := p.args
		if args == "" {
			args = "{}"
		}
		out = append(out, models.ToolCall{
			ID:   id,
			Type: "function",
			Function: models.ToolCallFunction{
				Name:      p.name,
				Arguments: args,
			},
		})
	}
	return out
}
