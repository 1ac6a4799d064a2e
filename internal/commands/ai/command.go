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

// Package ai implements "ai providers|models|test|setup": inspecting and
// smoke-testing the coding-agent adapters a runner can invoke.
package ai

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steroids-run/steroids/internal/cli/agentset"
	"github.com/steroids-run/steroids/internal/cli/shared"
	"github.com/steroids-run/steroids/internal/provider"
)

// NewCommand creates the "ai" command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Inspect and test coding-agent providers",
	}
	cmd.AddCommand(newProvidersCommand())
	cmd.AddCommand(newModelsCommand())
	cmd.AddCommand(newTestCommand())
	cmd.AddCommand(newSetupCommand())
	return cmd
}

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered providers and their availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := agentset.NewRegistry()
			type row struct {
				Name      string `json:"name"`
				Available bool   `json:"available"`
			}
			var rows []row
			for _, name := range registry.Names() {
				p, _ := registry.Get(name)
				rows = append(rows, row{Name: name, Available: p.IsAvailable()})
			}
			if shared.GetJSON() {
				return shared.EmitJSONResult(rows)
			}
			for _, r := range rows {
				fmt.Printf("%s\tavailable=%t\n", r.Name, r.Available)
			}
			return nil
		},
	}
}

func newModelsCommand() *cobra.Command {
	var providerName string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models a provider can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := agentset.NewRegistry()
			name := providerName
			if name == "" {
				name = agentset.DefaultProviderName
			}
			p, ok := registry.Get(name)
			if !ok {
				return shared.NewExitError(shared.ExitInvalidArgs, "unknown provider", fmt.Errorf("%s", name))
			}
			models := p.ListModels()
			if shared.GetJSON() {
				return shared.EmitJSONResult(models)
			}
			for _, m := range models {
				fmt.Printf("%s\t%s\n", m.ID, m.DisplayName)
			}
			fmt.Printf("default coder model: %s\n", p.GetDefaultModel(provider.RoleCoder))
			fmt.Printf("default reviewer model: %s\n", p.GetDefaultModel(provider.RoleReviewer))
			fmt.Printf("default coordinator model: %s\n", p.GetDefaultModel(provider.RoleOrchestrator))
			return nil
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "", "Provider to query (default: the default provider)")
	return cmd
}

func newTestCommand() *cobra.Command {
	var providerName string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Invoke a provider with a trivial prompt to confirm it is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd.Context(), providerName)
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "", "Provider to test (default: the default provider)")
	return cmd
}

func runTest(ctx context.Context, providerName string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	registry := agentset.NewRegistry()
	name := providerName
	if name == "" {
		name = agentset.DefaultProviderName
	}
	p, ok := registry.Get(name)
	if !ok {
		return shared.NewExitError(shared.ExitInvalidArgs, "unknown provider", fmt.Errorf("%s", name))
	}
	if !p.IsAvailable() {
		return shared.NewExitError(shared.ExitHealthFailed, "provider unavailable", fmt.Errorf("%s not found on PATH", name))
	}

	result, err := p.Invoke(ctx, "Reply with the single word: ok", provider.InvokeOptions{
		Role:  provider.RoleCoder,
		Model: p.GetDefaultModel(provider.RoleCoder),
	})
	if err != nil {
		return shared.NewExitError(shared.ExitHealthFailed, "provider invocation failed", err)
	}
	if kind := p.ClassifyResult(result); kind != "" {
		return shared.NewExitError(shared.ExitHealthFailed, "provider returned an error", fmt.Errorf("%s", kind))
	}

	if shared.GetJSON() {
		return shared.EmitJSONResult(result)
	}
	fmt.Printf("%s: ok (exit %d)\n", name, result.ExitCode)
	return nil
}

func newSetupCommand() *cobra.Command {
	var providerName string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Check that a provider's CLI binary is on PATH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := agentset.NewRegistry()
			name := providerName
			if name == "" {
				name = agentset.DefaultProviderName
			}
			p, ok := registry.Get(name)
			if !ok {
				return shared.NewExitError(shared.ExitInvalidArgs, "unknown provider", fmt.Errorf("%s", name))
			}
			if !p.IsAvailable() {
				return shared.NewExitError(shared.ExitHealthFailed, "provider binary not found on PATH", fmt.Errorf("%s", name))
			}
			if shared.GetJSON() {
				return shared.EmitJSONResult(map[string]any{"provider": name, "ready": true})
			}
			fmt.Printf("%s: ready\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "", "Provider to check (default: the default provider)")
	return cmd
}
