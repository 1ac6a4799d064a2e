// Package decision extracts structured decision fields (action, confidence,
// next status) out of whatever a coder/reviewer invocation emits: either a
// JSON blob embedded in its stdout, or a loose jq-style path probe against
// it. The orchestrator falls back to its own regex/text classifiers when
// extraction finds nothing, so this package only ever narrows a decision,
// never invents one.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultTimeout bounds a single jq evaluation.
const DefaultTimeout = 1 * time.Second

// MaxInputSize caps the JSON blob size a query is run against.
const MaxInputSize = 2 * 1024 * 1024

// Extractor evaluates jq expressions against invocation output that happens
// to contain embedded JSON.
type Extractor struct {
	timeout      time.Duration
	maxInputSize int64
}

// NewExtractor builds an Extractor, defaulting timeout/maxInputSize when
// zero.
func NewExtractor(timeout time.Duration, maxInputSize int64) *Extractor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = MaxInputSize
	}
	return &Extractor{timeout: timeout, maxInputSize: maxInputSize}
}

// FindEmbeddedJSON locates the first top-level JSON object or array in
// text and decodes it, for output that wraps a structured decision in
// prose (code fences, a leading "Here's my decision:" sentence, etc).
func FindEmbeddedJSON(text string) (interface{}, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, false
	}
	for end := len(text); end > start; end-- {
		candidate := strings.TrimSpace(text[start:end])
		if candidate == "" {
			continue
		}
		var v interface{}
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

// Query evaluates expression against data and returns the first result.
func (e *Extractor) Query(ctx context.Context, expression string, data interface{}) (interface{}, error) {
	if expression == "" {
		return data, nil
	}
	if raw, err := json.Marshal(data); err != nil {
		return nil, fmt.Errorf("marshal query input: %w", err)
	} else if int64(len(raw)) > e.maxInputSize {
		return nil, fmt.Errorf("query input (%d bytes) exceeds limit (%d bytes)", len(raw), e.maxInputSize)
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse jq expression %q: %w", expression, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile jq expression %q: %w", expression, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan interface{}, 1)
	errCh := make(chan error, 1)
	go func() {
		iter := code.Run(data)
		v, ok := iter.Next()
		if !ok {
			resultCh <- nil
			return
		}
		if err, isErr := v.(error); isErr {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	select {
	case v := <-resultCh:
		return v, nil
	case err := <-errCh:
		return nil, err
	case <-queryCtx.Done():
		return nil, fmt.Errorf("jq query timed out after %v", e.timeout)
	}
}

// StringField evaluates expression and coerces a string result, returning
// ("", false) on any error or non-string/absent result.
func (e *Extractor) StringField(ctx context.Context, expression string, data interface{}) (string, bool) {
	v, err := e.Query(ctx, expression, data)
	if err != nil || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float64Field evaluates expression and coerces a float64 result.
func (e *Extractor) Float64Field(ctx context.Context, expression string, data interface{}) (float64, bool) {
	v, err := e.Query(ctx, expression, data)
	if err != nil || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
