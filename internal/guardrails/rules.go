package guardrails

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Rule kinds.
const (
	KindContentFilter    = "content_filter"
	KindPIIDetection     = "pii_detection"
	KindTopicRestriction = "topic_restriction"
	KindMaxLength        = "max_length"
	KindRegexFilter      = "regex_filter"
	KindPromptInjection  = "prompt_injection"
	KindExpression       = "expression"
)

type compiledRule struct {
	rule    models.GuardrailRule
	regex   *regexp.Regexp // regex_filter only
	program *vm.Program    // expression only
}

// rulesFile is the on-disk shape of a guardrail config file.
type rulesFile struct {
	Rules []models.GuardrailRule `json:"rules"`
}

// Load reads a guardrail rules file and compiles its rules. An empty
// path yields an engine with no rules. Invalid rules fail the load:
// guardrail config errors should stop startup, not surface per request.
func Load(path string) (*Engine, error) {
	if path == "" {
		return &Engine{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guardrail rules: %w", err)
	}

	var file rulesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse guardrail rules: %w", err)
	}

	engine, err := New(file.Rules)
	if err != nil {
		return nil, err
	}

	log.Info().Int("rules", len(file.Rules)).Str("path", path).Msg("Guardrail rules loaded")
	return engine, nil
}

// New compiles a rule set into an engine.
func New(rules []models.GuardrailRule) (*Engine, error) {
	engine := &Engine{rules: make([]compiledRule, 0, len(rules))}

	for i, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("guardrail rule %d: name is required", i)
		}
		if rule.Stage == "" {
			rule.Stage = models.StageBoth
		}
		if rule.Action == "" {
			rule.Action = models.ActionBlock
		}
		if rule.Action != models.ActionBlock && rule.Action != models.ActionFlag {
			return nil, fmt.Errorf("guardrail rule %q: unknown action %q", rule.Name, rule.Action)
		}

		cr := compiledRule{rule: rule}
		switch rule.Kind {
		case KindContentFilter, KindPIIDetection, KindTopicRestriction, KindMaxLength, KindPromptInjection:
			// Nothing to precompile.
		case KindRegexFilter:
			pattern, _ := rule.Config["pattern"].(string)
			if pattern == "" {
				return nil, fmt.Errorf("guardrail rule %q: regex_filter needs a pattern", rule.Name)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("guardrail rule %q: %w", rule.Name, err)
			}
			cr.regex = re
		case KindExpression:
			code, _ := rule.Config["expr"].(string)
			if code == "" {
				return nil, fmt.Errorf("guardrail rule %q: expression needs an expr", rule.Name)
			}
			program, err := expr.Compile(code,
				expr.Env(exprEnv("", "", map[string]string{})),
				expr.AsBool(),
			)
			if err != nil {
				return nil, fmt.Errorf("guardrail rule %q: %w", rule.Name, err)
			}
			cr.program = program
		default:
			return nil, fmt.Errorf("guardrail rule %q: unknown kind %q", rule.Name, rule.Kind)
		}

		engine.rules = append(engine.rules, cr)
	}

	return engine, nil
}
