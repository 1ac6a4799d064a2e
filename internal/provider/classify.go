package provider

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RateLimitRetryAfter is the default retry-after window applied when a
// provider's rate-limit response does not specify its own.
const RateLimitRetryAfter = 60

// structuredErrorBody is the JSON shape providers commonly use for a
// machine-readable error code, e.g. {"error": {"code": "insufficient_quota"}}.
type structuredErrorBody struct {
	Error struct {
		Code string `json:"code"`
		Type string `json:"type"`
	} `json:"error"`
}

var (
	creditExhaustionPattern = regexp.MustCompile(`(?i)insufficient (credits|funds|balance|quota)|payment required|out of tokens|usage limit reached|plan limit|subscription expired`)
	rateLimitPattern        = regexp.MustCompile(`(?i)rate limit|\b429\b|overloaded|capacity|\bbusy\b`)
	authPattern             = regexp.MustCompile(`(?i)unauthorized|auth`)
	networkPattern          = regexp.MustCompile(`(?i)connection|timeout|network`)
	modelNotFoundPattern    = regexp.MustCompile(`(?i)model not found|unknown model|no such model`)
	contextExceededPattern  = regexp.MustCompile(`(?i)context (length|window) exceeded|too many tokens|maximum context`)

	rateLimitDisambiguators   = regexp.MustCompile(`(?i)per minute|per second|retry after`)
	creditDisambiguators      = regexp.MustCompile(`(?i)billing|budget|hard limit`)
)

// ClassifyErrorText runs the provider error classification precedence
// chain against stderr text (the primary signal), falling back to stdout
// when stderr is empty. Order matters: structured JSON codes win first,
// then RESOURCE_EXHAUSTED disambiguation, then regex credit exhaustion,
// then rate limiting, then auth, network, model-not-found,
// context-exceeded, and finally unknown.
func ClassifyErrorText(stderr, stdout string) ErrorKind {
	text := stderr
	if strings.TrimSpace(text) == "" {
		text = stdout
	}
	if text == "" {
		return ErrorUnknown
	}

	if kind, ok := classifyStructuredCode(text); ok {
		return kind
	}
	if strings.Contains(text, "RESOURCE_EXHAUSTED") {
		switch {
		case rateLimitDisambiguators.MatchString(text):
			return ErrorRateLimit
		case creditDisambiguators.MatchString(text):
			return ErrorCreditExhaustion
		}
	}
	switch {
	case creditExhaustionPattern.MatchString(text):
		return ErrorCreditExhaustion
	case rateLimitPattern.MatchString(text):
		return ErrorRateLimit
	case authPattern.MatchString(text):
		return ErrorAuth
	case networkPattern.MatchString(text):
		return ErrorNetwork
	case modelNotFoundPattern.MatchString(text):
		return ErrorModelNotFound
	case contextExceededPattern.MatchString(text):
		return ErrorContextExceeded
	default:
		return ErrorUnknown
	}
}

// classifyStructuredCode scans text for an embedded JSON object carrying a
// recognized error code. Providers sometimes wrap structured JSON inside a
// larger stderr blob, so this scans line by line rather than requiring the
// whole text to parse.
func classifyStructuredCode(text string) (ErrorKind, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var body structuredErrorBody
		if err := json.Unmarshal([]byte(line), &body); err != nil {
			continue
		}
		switch body.Error.Code {
		case "insufficient_quota", "billing_hard_limit_reached":
			return ErrorCreditExhaustion, true
		}
	}
	return "", false
}
