// Package cliagent implements provider.Provider by shelling out to a
// locally installed CLI coding agent (the reference target is Anthropic's
// claude CLI, but the same JSON-lines protocol is common across agent
// CLIs: --output-format json, --model, --resume SESSION_ID).
package cliagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/steroids-run/steroids/internal/provider"
)

// Config configures one cliagent.Provider instance.
type Config struct {
	// ProviderName is the logical name this provider registers under.
	ProviderName string
	// Candidates are binary names tried in order during Detect (e.g.
	// "claude", "claude-code").
	Candidates []string
	// DefaultModels maps a role to the model id used when the caller
	// doesn't specify one.
	DefaultModels map[provider.Role]string
	// AuthFiles are extra home-relative paths (beyond .gitconfig/.ssh)
	// symlinked into a sandboxed home when Sandboxed is true.
	AuthFiles []string
	Sandboxed bool
}

// Provider is a CLI-subprocess provider implementation.
type Provider struct {
	cfg     Config
	command string // resolved binary name/path, set by Detect
}

// New constructs a provider from cfg. Invoke/Resume go through IsAvailable,
// which runs Detect on first use when no binary has been resolved yet.
func New(cfg Config) *Provider {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "cli-agent"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return p.cfg.ProviderName }

// Detect resolves the first available candidate binary on PATH.
func (p *Provider) Detect() bool {
	for _, candidate := range p.cfg.Candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			p.command = path
			return true
		}
	}
	return false
}

func (p *Provider) IsAvailable() bool {
	if p.command != "" {
		return true
	}
	return p.Detect()
}

func (p *Provider) ListModels() []provider.ModelInfo {
	models := make([]provider.ModelInfo, 0, len(p.cfg.DefaultModels))
	for role, model := range p.cfg.DefaultModels {
		models = append(models, provider.ModelInfo{ID: model, DisplayName: string(role) + " default"})
	}
	return models
}

func (p *Provider) GetDefaultModel(role provider.Role) string {
	return p.cfg.DefaultModels[role]
}

func (p *Provider) ClassifyError(exitCode int, stderr string) provider.ErrorKind {
	return provider.ClassifyExitCode(exitCode, stderr)
}

func (p *Provider) ClassifyResult(result provider.InvokeResult) provider.ErrorKind {
	return provider.ClassifyInvokeResult(result)
}

// cliResponse is the JSON-lines envelope emitted by `--output-format json`.
type cliResponse struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	Usage     struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Invoke(ctx context.Context, prompt string, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	return p.run(ctx, prompt, opts, "")
}

func (p *Provider) Resume(ctx context.Context, sessionID, prompt string, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	return p.run(ctx, prompt, opts, sessionID)
}

func (p *Provider) run(ctx context.Context, prompt string, opts provider.InvokeOptions, resumeSessionID string) (provider.InvokeResult, error) {
	if !p.IsAvailable() {
		return provider.InvokeResult{}, fmt.Errorf("%s: CLI binary not found on PATH", p.cfg.ProviderName)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = provider.DefaultInvokeTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := p.buildArgs(opts, resumeSessionID)

	cmd := exec.CommandContext(runCtx, p.command, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = provider.SanitizedEnv()
	cmd.Stdin = strings.NewReader(prompt)

	if p.cfg.Sandboxed {
		sandboxHome, cleanup, err := provider.SandboxedHome(sandboxHomeFromEnv(), p.cfg.AuthFiles)
		if err != nil {
			return provider.InvokeResult{}, fmt.Errorf("%s: %w", p.cfg.ProviderName, err)
		}
		defer cleanup()
		cmd.Env = append(cmd.Env, "HOME="+sandboxHome)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if opts.OnActivity != nil {
		opts.OnActivity(provider.ActivityEvent{
			Type:   "start",
			Fields: map[string]any{"role": string(opts.Role), "resumed": resumeSessionID != ""},
		})
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := provider.InvokeResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	emitComplete := func(res provider.InvokeResult) {
		if opts.OnActivity != nil {
			opts.OnActivity(provider.ActivityEvent{
				Type: "complete",
				Fields: map[string]any{
					"success":    res.Success,
					"exit_code":  res.ExitCode,
					"timed_out":  res.TimedOut,
					"duration_s": res.Duration.Seconds(),
				},
			})
		}
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.Success = false
		emitComplete(result)
		return result, nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("%s: invocation failed: %w", p.cfg.ProviderName, err)
		}
		result.Success = false
		emitComplete(result)
		return result, nil
	}

	var resp cliResponse
	if jsonErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); jsonErr != nil {
		result.Success = true
		result.ExitCode = 0
		emitComplete(result)
		return result, nil
	}

	result.Success = !resp.IsError
	result.SessionID = resp.SessionID
	if resp.Usage.InputTokens+resp.Usage.OutputTokens > 0 {
		result.Usage = &provider.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	if resp.IsError {
		result.Stderr = provider.RedactForLog(resp.Result)
	}
	emitComplete(result)
	return result, nil
}

func (p *Provider) buildArgs(opts provider.InvokeOptions, resumeSessionID string) []string {
	args := []string{"--output-format", "json", "--print"}
	model := opts.Model
	if model == "" {
		model = p.GetDefaultModel(opts.Role)
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if resumeSessionID != "" {
		args = append(args, "--resume", resumeSessionID)
	}
	return args
}

// sandboxHomeFromEnv resolves the sandbox source home directory, used so
// tests can override HOME without touching the real one.
func sandboxHomeFromEnv() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return ""
}
