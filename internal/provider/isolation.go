package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// knownAPIKeyVars are stripped from a child invocation's environment so the
// CLI falls back to its own stored credentials instead of an ambient key
// meant for a different invocation or a different provider entirely.
var knownAPIKeyVars = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GOOGLE_API_KEY",
	"GEMINI_API_KEY",
	"MISTRAL_API_KEY",
	"COHERE_API_KEY",
	"AZURE_OPENAI_API_KEY",
}

// SanitizedEnv returns a copy of the current process environment with every
// known API-key variable removed.
func SanitizedEnv() []string {
	out := make([]string, 0, len(os.Environ()))
	for _, kv := range os.Environ() {
		if isStrippedVar(kv) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func isStrippedVar(kv string) bool {
	name, _, ok := strings.Cut(kv, "=")
	if !ok {
		return false
	}
	for _, stripped := range knownAPIKeyVars {
		if name == stripped {
			return true
		}
	}
	return false
}

// SandboxedHome builds a temporary directory containing symlinks to the
// real home's provider auth files plus .gitconfig and .ssh, so a child
// process pointed at it via HOME can authenticate without seeing the rest
// of the real home directory. authFiles are home-relative paths, e.g.
// ".claude", ".config/gh".
func SandboxedHome(realHome string, authFiles []string) (string, func(), error) {
	sandboxDir, err := os.MkdirTemp("", "steroids-sandbox-home-*")
	if err != nil {
		return "", nil, fmt.Errorf("sandboxed home: mkdir temp: %w", err)
	}
	cleanup := func() { os.RemoveAll(sandboxDir) }

	toLink := append([]string{".gitconfig", ".ssh"}, authFiles...)
	for _, rel := range toLink {
		src := filepath.Join(realHome, rel)
		if _, err := os.Lstat(src); err != nil {
			continue // not every auth file exists for every provider
		}
		dst := filepath.Join(sandboxDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("sandboxed home: mkdir %s: %w", filepath.Dir(dst), err)
		}
		if err := os.Symlink(src, dst); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("sandboxed home: symlink %s: %w", rel, err)
		}
	}
	return sandboxDir, cleanup, nil
}

var (
	homePathPattern = regexp.MustCompile(`/(?:Users|home)/[^/\s]+`)
	privateIPRegexp = regexp.MustCompile(`\b(?:10\.|172\.(?:1[6-9]|2[0-9]|3[01])\.|192\.168\.)[0-9.]+\b`)
)

// RedactForLog strips absolute home paths and private IPs from text before
// it is written to the activity log or surfaced in a fault message.
func RedactForLog(text string) string {
	text = homePathPattern.ReplaceAllString(text, "[HOME]")
	text = privateIPRegexp.ReplaceAllString(text, "[PRIVATE_IP]")
	return strings.TrimSpace(text)
}
