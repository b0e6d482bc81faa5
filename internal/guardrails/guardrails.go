// Package guardrails screens chat input and output against configured
// rules before and after the upstream call.
//
// Supported rule kinds:
//   - content_filter: keyword/phrase blocklist
//   - pii_detection: regex-based PII detection (emails, phone numbers, SSN, etc.)
//   - topic_restriction: allowed/blocked topic keywords
//   - max_length: character/word length limits
//   - regex_filter: custom regex pattern matching
//   - prompt_injection: heuristic prompt injection detection
//   - expression: expr-lang predicate over the message
package guardrails

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// ── Engine ──────────────────────────────────────────────────

// Engine evaluates compiled rules against message text. Regex and
// expression rules are compiled once at load time, so evaluation never
// fails at request time.
type Engine struct {
	rules []compiledRule
}

// EvaluateInput runs input-stage rules against the user message and
// returns a verdict per matched rule.
func (e *Engine) EvaluateInput(ctx context.Context, text string, meta map[string]string) []models.GuardrailVerdict {
	return e.evaluate("input", text, meta)
}

// EvaluateOutput runs output-stage rules against the model response.
func (e *Engine) EvaluateOutput(ctx context.Context, text string, meta map[string]string) []models.GuardrailVerdict {
	return e.evaluate("output", text, meta)
}

func (e *Engine) evaluate(stage string, text string, meta map[string]string) []models.GuardrailVerdict {
	var verdicts []models.GuardrailVerdict

	for _, cr := range e.rules {
		if !appliesToStage(cr.rule.Stage, stage) {
			continue
		}

		matched, detail := cr.eval(text, stage, meta)
		if !matched {
			continue
		}

		msg := cr.rule.Message
		if msg == "" {
			msg = detail
		}
		verdicts = append(verdicts, models.GuardrailVerdict{
			Rule:    cr.rule.Name,
			Action:  cr.rule.Action,
			Matched: true,
			Message: msg,
		})
	}

	return verdicts
}

// appliesToStage checks whether a rule applies to the given stage.
func appliesToStage(ruleStage models.GuardrailStage, currentStage string) bool {
	switch ruleStage {
	case models.StageBoth:
		return true
	case models.StageInput:
		return currentStage == "input"
	case models.StageOutput:
		return currentStage == "output"
	default:
		return true
	}
}

// eval dispatches a single rule evaluation. It returns whether the rule
// matched and the default detail message for a match.
func (cr *compiledRule) eval(text string, stage string, meta map[string]string) (bool, string) {
	switch cr.rule.Kind {
	case KindContentFilter:
		return evalContentFilter(cr.rule, text)
	case KindPIIDetection:
		return evalPIIDetection(cr.rule, text)
	case KindTopicRestriction:
		return evalTopicRestriction(cr.rule, text)
	case KindMaxLength:
		return evalMaxLength(cr.rule, text)
	case KindRegexFilter:
		return evalRegexFilter(cr, text)
	case KindPromptInjection:
		return evalPromptInjection(cr.rule, text)
	case KindExpression:
		return evalExpression(cr, text, stage, meta)
	default:
		return false, ""
	}
}

// ── Content Filter ──────────────────────────────────────────
// Config: { "blocked_words": ["word1", "word2"], "case_sensitive": false }

func evalContentFilter(rule models.GuardrailRule, text string) (bool, string) {
	blockedRaw, _ := rule.Config["blocked_words"].([]interface{})
	caseSensitive, _ := rule.Config["case_sensitive"].(bool)

	checkText := text
	if !caseSensitive {
		checkText = strings.ToLower(text)
	}

	for _, bRaw := range blockedRaw {
		word, ok := bRaw.(string)
		if !ok {
			continue
		}
		checkWord := word
		if !caseSensitive {
			checkWord = strings.ToLower(word)
		}
		if strings.Contains(checkText, checkWord) {
			return true, "Blocked content detected: contains prohibited word/phrase"
		}
	}

	return false, ""
}

// ── PII Detection ───────────────────────────────────────────
// Config: { "patterns": ["email", "phone", "ssn", "credit_card"] }
// If "patterns" is empty, all built-in patterns are checked.

var builtInPIIPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"phone":       regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
}

func evalPIIDetection(rule models.GuardrailRule, text string) (bool, string) {
	patternsRaw, _ := rule.Config["patterns"].([]interface{})

	var patternsToCheck []string
	if len(patternsRaw) > 0 {
		for _, p := range patternsRaw {
			if s, ok := p.(string); ok {
				patternsToCheck = append(patternsToCheck, s)
			}
		}
	} else {
		for k := range builtInPIIPatterns {
			patternsToCheck = append(patternsToCheck, k)
		}
	}

	for _, name := range patternsToCheck {
		re, ok := builtInPIIPatterns[name]
		if !ok {
			continue
		}
		if re.MatchString(text) {
			return true, "PII detected: " + name + " pattern matched"
		}
	}

	return false, ""
}

// ── Topic Restriction ───────────────────────────────────────
// Config: { "allowed_topics": [...], "blocked_topics": [...] }
// Keyword-based matching. If allowed_topics is set, text must contain
// at least one allowed topic keyword to pass. blocked_topics always blocks.

func evalTopicRestriction(rule models.GuardrailRule, text string) (bool, string) {
	lower := strings.ToLower(text)

	blockedRaw, _ := rule.Config["blocked_topics"].([]interface{})
	for _, bRaw := range blockedRaw {
		topic, ok := bRaw.(string)
		if !ok {
			continue
		}
		if strings.Contains(lower, strings.ToLower(topic)) {
			return true, "Blocked topic detected: " + topic
		}
	}

	allowedRaw, _ := rule.Config["allowed_topics"].([]interface{})
	if len(allowedRaw) > 0 {
		found := false
		for _, aRaw := range allowedRaw {
			topic, ok := aRaw.(string)
			if !ok {
				continue
			}
			if strings.Contains(lower, strings.ToLower(topic)) {
				found = true
				break
			}
		}
		if !found {
			return true, "Message does not match any allowed topic"
		}
	}

	return false, ""
}

// ── Max Length ───────────────────────────────────────────────
// Config: { "max_characters": 5000, "max_words": 1000 }

func evalMaxLength(rule models.GuardrailRule, text string) (bool, string) {
	if maxChars, ok := getIntConfig(rule.Config, "max_characters"); ok && maxChars > 0 {
		if utf8.RuneCountInString(text) > maxChars {
			return true, "Message exceeds maximum character limit"
		}
	}

	if maxWords, ok := getIntConfig(rule.Config, "max_words"); ok && maxWords > 0 {
		if len(strings.Fields(text)) > maxWords {
			return true, "Message exceeds maximum word limit"
		}
	}

	return false, ""
}

// ── Regex Filter ────────────────────────────────────────────
// Config: { "pattern": "regex_string", "block_on_match": true }

func evalRegexFilter(cr *compiledRule, text string) (bool, string) {
	if cr.regex == nil {
		return false, ""
	}

	blockOnMatch := true
	if b, ok := cr.rule.Config["block_on_match"].(bool); ok {
		blockOnMatch = b
	}

	matched := cr.regex.MatchString(text)
	if matched && blockOnMatch {
		return true, "Content matched blocked regex pattern"
	}
	if !matched && !blockOnMatch {
		return true, "Content did not match required regex pattern"
	}

	return false, ""
}

// ── Prompt Injection Detection ──────────────────────────────
// Heuristic-based detection of common prompt injection patterns.
// Config: { "sensitivity": "high" | "medium" | "low" }

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?:\s*`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)pretend\s+you\s+(are|have)\s+no\s+(restrictions?|rules?|guidelines?)`),
	regexp.MustCompile(`(?i)act\s+as\s+if\s+you\s+have\s+no\s+(restrictions?|rules?|filters?)`),
}

// Additional high-sensitivity patterns
var highSensitivityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)override\s+(your|the|all)\s+`),
	regexp.MustCompile(`(?i)bypass\s+(your|the|all)\s+`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`),
	regexp.MustCompile(`(?i)what\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions?|rules?)`),
	regexp.MustCompile(`(?i)repeat\s+(your|the)\s+(system\s+)?(prompt|instructions?)\s+verbatim`),
}

func evalPromptInjection(rule models.GuardrailRule, text string) (bool, string) {
	sensitivity, _ := rule.Config["sensitivity"].(string)
	if sensitivity == "" {
		sensitivity = "medium"
	}

	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return true, "Potential prompt injection detected"
		}
	}

	if sensitivity == "high" {
		for _, re := range highSensitivityPatterns {
			if re.MatchString(text) {
				return true, "Potential prompt injection detected (high sensitivity)"
			}
		}
	}

	return false, ""
}

// ── Expression ──────────────────────────────────────────────
// Config: { "expr": "chars > 2000 && stage == \"input\"" }
// The expression sees text, stage, chars, words, and meta, and must
// evaluate to a boolean. True means the rule matched.

func evalExpression(cr *compiledRule, text string, stage string, meta map[string]string) (bool, string) {
	if cr.program == nil {
		return false, ""
	}
	if meta == nil {
		meta = map[string]string{}
	}

	out, err := expr.Run(cr.program, exprEnv(text, stage, meta))
	if err != nil {
		return false, ""
	}

	matched, _ := out.(bool)
	if matched {
		return true, "Expression rule matched"
	}
	return false, ""
}

func exprEnv(text string, stage string, meta map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"text":  text,
		"stage": stage,
		"chars": utf8.RuneCountInString(text),
		"words": len(strings.Fields(text)),
		"meta":  meta,
	}
}

// ── Helpers ─────────────────────────────────────────────────

// getIntConfig extracts an integer from a config map (handles float64 from JSON).
func getIntConfig(config map[string]interface{}, key string) (int, bool) {
	v, ok := config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
