package merge

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/steroids-run/steroids/internal/control"
)

// cappedBuffer is an io.Writer that stops accepting bytes once it reaches
// its cap, flagging the overflow rather than growing without bound. A
// validation command that floods stdout/stderr must not be allowed to
// exhaust memory before it is even judged to have failed.
type cappedBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.limit {
		c.truncated = true
		return len(p), nil
	}
	remaining := c.limit - len(c.buf)
	if len(p) > remaining {
		c.buf = append(c.buf, p[:remaining]...)
		c.truncated = true
	} else {
		c.buf = append(c.buf, p...)
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

func (c *cappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}

// runValidationGate runs opts.ValidationCommand in integrationDir. A
// non-zero exit or an overflowed output buffer escalates: a
// control.ValidationEscalation row is persisted (the workspace is left
// in place for inspection, output truncated to ValidationSnippetLimit)
// and the gate reports failure without the caller needing to know why.
func (e *Engine) runValidationGate(ctx context.Context, opts Options, integrationDir string) (bool, error) {
	if len(opts.ValidationCommand) == 0 {
		return true, nil
	}

	out := newCappedBuffer(ValidationOutputCap)
	cmd := exec.CommandContext(ctx, opts.ValidationCommand[0], opts.ValidationCommand[1:]...)
	cmd.Dir = integrationDir
	cmd.Stdout = out
	cmd.Stderr = out

	runErr := cmd.Run()

	if runErr == nil && !out.Truncated() {
		return true, nil
	}

	errMessage := "validation command failed"
	if out.Truncated() {
		errMessage = fmt.Sprintf("validation output exceeded %d bytes", ValidationOutputCap)
	} else if runErr != nil {
		errMessage = runErr.Error()
	}

	snippet := out.String()
	if len(snippet) > ValidationSnippetLimit {
		snippet = snippet[:ValidationSnippetLimit]
	}

	escalation := control.ValidationEscalation{
		ID:            uuid.NewString(),
		SessionID:     opts.SessionID,
		ProjectPath:   opts.ProjectPath,
		WorkspacePath: integrationDir,
		ValidationCmd: strings.Join(opts.ValidationCommand, " "),
		ErrorMessage:  errMessage,
		OutputSnippet: snippet,
	}
	if err := e.Control.CreateValidationEscalation(ctx, escalation); err != nil {
		return false, fmt.Errorf("create validation escalation: %w", err)
	}
	e.recordValidationFailure(ctx, out.Truncated())

	return false, nil
}

// resolveValidationEscalations acknowledges every open escalation for a
// session once that session's merge completes — the validation failure
// they recorded no longer blocks anything once the session is done.
func (e *Engine) resolveValidationEscalations(ctx context.Context, sessionID string) error {
	open, err := e.Control.ListOpenValidationEscalations(ctx)
	if err != nil {
		return fmt.Errorf("list open validation escalations: %w", err)
	}
	for _, esc := range open {
		if esc.SessionID != sessionID {
			continue
		}
		if err := e.Control.AcknowledgeValidationEscalation(ctx, esc.ID); err != nil {
			return fmt.Errorf("acknowledge validation escalation %s: %w", esc.ID, err)
		}
	}
	return nil
}
