// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agentset builds the provider registry every command that drives
// the coder/reviewer/coordinator lifecycle shares: one CLI-subprocess
// adapter, registered once, whose default model varies by role.
package agentset

import (
	"github.com/steroids-run/steroids/internal/provider"
	"github.com/steroids-run/steroids/internal/provider/cliagent"
)

// DefaultProviderName is the name the default adapter registers under; it
// is used as the CoderProviderName/ReviewerProviderName/
// CoordinatorProviderName on every orchestrator.Engine this package builds
// providers for.
const DefaultProviderName = "claude-code"

// DefaultConfig is the cliagent.Config used when no override is
// configured: candidate binaries on PATH, and a default model per role.
func DefaultConfig() cliagent.Config {
	return cliagent.Config{
		ProviderName: DefaultProviderName,
		Candidates:   []string{"claude", "claude-code"},
		DefaultModels: map[provider.Role]string{
			provider.RoleCoder:        "claude-sonnet-4-5",
			provider.RoleReviewer:     "claude-sonnet-4-5",
			provider.RoleOrchestrator: "claude-opus-4-1",
		},
		AuthFiles: []string{".claude", ".claude.json"},
	}
}

// NewRegistry builds a registry with the default adapter registered.
func NewRegistry() *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register(cliagent.New(DefaultConfig()))
	return reg
}
