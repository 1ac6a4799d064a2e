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

// Package cli assembles the steroids command-line front end: the root
// Cobra command plus every subcommand package under internal/commands.
// The engine packages it drives (store, control, orchestrator, scheduler,
// merge, wakeup) know nothing about Cobra or flags; this layer exists
// purely to parse arguments and call them.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/steroids-run/steroids/internal/cli/shared"
	"github.com/steroids-run/steroids/internal/commands/ai"
	"github.com/steroids-run/steroids/internal/commands/loop"
	"github.com/steroids-run/steroids/internal/commands/merge"
	"github.com/steroids-run/steroids/internal/commands/runners"
	"github.com/steroids-run/steroids/internal/commands/tasks"
	"github.com/steroids-run/steroids/internal/commands/wake"
)

// SetVersion sets the version information, called from main.
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command and attaches every
// subcommand.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steroids",
		Short: "steroids - parallel LLM task execution engine",
		Long: `steroids drives a dependency-ordered task backlog through LLM coder,
reviewer, and coordinator roles, partitioning independent work across
concurrent git worktrees and merging the results back through a
conflict-aware cherry-pick pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, jsonOut, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(jsonOut, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file")

	cmd.AddCommand(
		runners.NewCommand(),
		loop.NewCommand(),
		merge.NewCommand(),
		tasks.NewCommand(),
		ai.NewCommand(),
		wake.NewCommand(),
	)

	return cmd
}

// GetVersion returns the version, commit, and build date.
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError prints err and exits with the appropriate code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
