package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/modelrelay/modelrelay/gateway/internal/config"
	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/modelrelay/modelrelay/gateway/pkg/contracts"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"
)

// maxToolResponse bounds how much of a connector response is read.
const maxToolResponse = 64 << 10

// Result is the outcome of one tool call. Content is always a JSON
// string: the connector's payload on success, an {"error": ...}
// envelope otherwise. A failing tool never fails the chat turn.
type Result struct {
	CallID  string
	Name    string
	Content string
}

// Credentials are the per-user keys connectors draw from, as stored in
// the user's settings.
type Credentials map[string]string

func (c Credentials) get(key string) (string, error) {
	v := c[key]
	if v == "" {
		return "", fmt.Errorf("missing credential %q: add it in your settings", key)
	}
	return v, nil
}

// Executor performs tool calls. It is safe for concurrent use.
type Executor struct {
	store   store.Store
	sandbox contracts.SandboxEngine
	client  *http.Client
	cfg     config.ToolConfig
}

// NewExecutor creates a tool executor backed by the settings store and
// the configured sandbox engine.
func NewExecutor(s store.Store, sandbox contracts.SandboxEngine, cfg config.ToolConfig) *Executor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Executor{
		store:   s,
		sandbox: sandbox,
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
	}
}

// Credentials loads the user's stored keys. A missing settings row is
// not an error: connectors report their own missing credentials.
func (e *Executor) Credentials(ctx context.Context, userID string) Credentials {
	if userID == "" {
		return Credentials{}
	}

	settings, err := e.store.GetUserSettings(ctx, userID)
	if err != nil {
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			log.Warn().Err(err).Str("user", userID).Msg("Loading tool credentials failed")
		}
		return Credentials{}
	}
	return Credentials(settings.APIKeys)
}

// ExecuteAll runs every call concurrently with a bounded worker limit
// and returns results in call order. All calls resolve (success or
// caught error) before it returns.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall, creds Credentials) []Result {
	results := make([]Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = Result{
				CallID:  call.ID,
				Name:    call.Function.Name,
				Content: e.Execute(gctx, call, creds),
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// Execute runs one tool call and always returns a JSON string. Every
// failure path — unknown tool, invalid arguments, connector error — is
// caught and folded into an error envelope the model can read.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall, creds Credentials) string {
	name := call.Function.Name
	start := time.Now()

	def, ok := Lookup(name)
	if !ok {
		return errorJSON(fmt.Sprintf("unknown tool: %s", name))
	}

	if err := validateArgs(def, call.Function.Arguments); err != nil {
		return errorJSON(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return errorJSON(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	out, err := e.dispatch(ctx, name, args, creds)
	if err != nil {
		log.Warn().
			Str("tool", name).
			Str("call_id", call.ID).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Tool call failed")
		return errorJSON(err.Error())
	}

	log.Debug().
		Str("tool", name).
		Str("call_id", call.ID).
		Dur("duration", time.Since(start)).
		Msg("Tool call complete")
	return out
}

func (e *Executor) dispatch(ctx context.Context, name string, args map[string]interface{}, creds Credentials) (string, error) {
	switch name {
	case ToolWebSearch:
		return e.webSearch(ctx, args, creds)
	case ToolScrape:
		return e.scrapeWebsite(ctx, args, creds)
	case ToolGeocode:
		return e.geocodeAddress(ctx, args, creds)
	case ToolDirections:
		return e.getDirections(ctx, args, creds)
	case ToolSendEmail:
		return e.sendEmail(ctx, args, creds)
	case ToolDNSLookup:
		return e.dnsLookup(ctx, args)
	case ToolExecuteCode:
		return e.executeCode(ctx, args)
	case ToolAnalyzeImage:
		return e.analyzeImage(ctx, args, creds)
	default:
		return "", fmt.Errorf("tool %s has no connector", name)
	}
}

// validateArgs checks the raw arguments against the tool's JSON schema.
func validateArgs(def models.ToolDefinition, argsJSON string) error {
	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def.Function.Parameters),
		gojsonschema.NewStringLoader(argsJSON),
	)
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

// errorJSON shapes a caught failure as the envelope fed back to the
// model in place of a result.
func errorJSON(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}

// doJSON performs one connector HTTP call with retries on transient
// failures (network errors, 429, 5xx). The request is rebuilt per
// attempt because bodies are single-use.
func (e *Executor) doJSON(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var out []byte

	op := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxToolResponse))
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}

		out = body
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.cfg.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return out, nil
}

// strArg extracts an optional string argument.
func strArg(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
