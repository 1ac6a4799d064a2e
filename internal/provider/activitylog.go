package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// ActivityLog is an append-only newline-delimited-JSON log of one
// invocation's lifecycle: a start event, zero or more activity events, and
// a terminal complete event.
type ActivityLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenActivityLog opens (creating if needed) the NDJSON log file at path
// for appending.
func OpenActivityLog(path string) (*ActivityLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	return &ActivityLog{file: f}, nil
}

func (l *ActivityLog) Close() error { return l.file.Close() }

// Write appends one event as a single JSON line.
func (l *ActivityLog) Write(ev ActivityEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write activity event: %w", err)
	}
	return nil
}

// Start records the start event for an invocation.
func (l *ActivityLog) Start(role Role, model string) error {
	return l.Write(ActivityEvent{Type: "start", Fields: map[string]any{"role": string(role), "model": model}})
}

// Activity records a mid-invocation progress event.
func (l *ActivityLog) Activity(detail string) error {
	return l.Write(ActivityEvent{Type: "activity", Detail: RedactForLog(detail)})
}

// Complete records the terminal event for an invocation.
func (l *ActivityLog) Complete(result InvokeResult, kind ErrorKind) error {
	fields := map[string]any{
		"success":    result.Success,
		"exit_code":  result.ExitCode,
		"timed_out":  result.TimedOut,
		"duration_s": result.Duration.Seconds(),
	}
	if kind != "" {
		fields["error_kind"] = string(kind)
	}
	return l.Write(ActivityEvent{Type: "complete", Fields: fields})
}
