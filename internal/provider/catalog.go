// Package provider holds the static catalogue of upstream AI providers
// and the adapters that translate between the gateway's normalized chat
// shape and each vendor's wire dialect.
package provider

import "sort"

// Dialect identifies a vendor wire format. Several providers share the
// OpenAI-compatible dialect and differ only in endpoint and model names.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
	DialectGoogle    Dialect = "google"
	DialectCohere    Dialect = "cohere"
)

// AuthStyle selects how the API key is attached to the request.
type AuthStyle string

const (
	// AuthBearer sets "Authorization: Bearer <key>".
	AuthBearer AuthStyle = "bearer"
	// AuthAnthropic sets "x-api-key" plus the anthropic-version header.
	AuthAnthropic AuthStyle = "anthropic"
	// AuthQueryKey appends the key as a "key" query parameter.
	AuthQueryKey AuthStyle = "query"
)

// Descriptor is the static configuration for one provider. The table
// below is fixed at build time and read-only at request time.
type Descriptor struct {
	ID            string
	Endpoint      string
	DefaultModel  string
	Dialect       Dialect
	AuthStyle     AuthStyle
	SupportsTools bool

	// RequiresKey is false only for the built-in default provider,
	// whose key comes from gateway configuration rather than the caller.
	RequiresKey bool
}

// DefaultProvider is used when the request names no provider.
const DefaultProvider = "lovable"

const anthropicVersion = "2023-06-01"

// descriptors is the immutable provider table. The google endpoint
// carries a %s placeholder for the model name.
var descriptors = map[string]Descriptor{
	"lovable": {
		ID:            "lovable",
		Endpoint:      "https://ai.gateway.lovable.dev/v1/chat/completions",
		DefaultModel:  "google/gemini-2.5-flash",
		Dialect:       DialectOpenAI,
		AuthStyle:     AuthBearer,
		SupportsTools: true,
		RequiresKey:   false,
	},
	"openai": {
		ID:            "openai",
		Endpoint:      "https://api.openai.com/v1/chat/completions",
		DefaultModel:  "gpt-4o-mini",
		Dialect:       DialectOpenAI,
		AuthStyle:     AuthBearer,
		SupportsTools: true,
		RequiresKey:   true,
	},
	"groq": {
		ID:            "groq",
		Endpoint:      "https://api.groq.com/openai/v1/chat/completions",
		DefaultModel:  "llama-3.3-70b-versatile",
		Dialect:       DialectOpenAI,
		AuthStyle:     AuthBearer,
		SupportsTools: true,
		RequiresKey:   true,
	},
	"mistral": {
		ID:            "mistral",
		Endpoint:      "https://api.mistral.ai/v1/chat/completions",
		DefaultModel:  "mistral-small-latest",
		Dialect:       DialectOpenAI,
		AuthStyle:     AuthBearer,
		SupportsTools: true,
		RequiresKey:   true,
	},
	"together": {
		ID:            "together",
		Endpoint:      "https://api.together.xyz/v1/chat/completions",
		DefaultModel:  "meta-llama/Llama-3.3-70B-Instruct-Turbo",
		Dialect:       DialectOpenAI,
		AuthStyle:     AuthBearer,
		SupportsTools: true,
		RequiresKey:   true,
	},
	"openrouter": {
		ID:            "openrouter",
		Endpoint:      "https://openrouter.ai/api/v1/chat/completions",
		DefaultModel:  "openai/gpt-4o-mini",
		Dialect:       DialectOpenAI,
		AuthStyle:     AuthBearer,
		SupportsTools: true,
		RequiresKey:   true,
	},
	"perplexity": {
		ID:            "perplexity",
		Endpoint:      "https://api.perplexity.ai/chat/completions",
		DefaultModel:  "sonar",
		Dialect:       DialectOpenAI,
		AuthStyle:     AuthBearer,
		SupportsTools: false,
		RequiresKey:   true,
	},
	"anthropic": {
		ID:            "anthropic",
		Endpoint:      "https://api.anthropic.com/v1/messages",
		DefaultModel:  "claude-sonnet-4-20250514",
		Dialect:       DialectAnthropic,
		AuthStyle:     AuthAnthropic,
		SupportsTools: true,
		RequiresKey:   true,
	},
	"google": {
		ID:            "google",
		Endpoint:      "https://generativelanguage.googleapis.com/v1beta/models/%s:streamGenerateContent?alt=sse",
		DefaultModel:  "gemini-2.0-flash",
		Dialect:       DialectGoogle,
		AuthStyle:     AuthQueryKey,
		SupportsTools: false,
		RequiresKey:   true,
	},
	"cohere": {
		ID:            "cohere",
		Endpoint:      "https://api.cohere.com/v2/chat",
		DefaultModel:  "command-r-plus",
		Dialect:       DialectCohere,
		AuthStyle:     AuthBearer,
		SupportsTools: false,
		RequiresKey:   true,
	},
}

// Lookup returns the descriptor for a provider ID.
func Lookup(id string) (Descriptor, bool) {
	d, ok := descriptors[id]
	return d, ok
}

// List returns all descriptors sorted by ID.
func List() []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
