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

// Package wake implements "purge|cleanup|wakeup": one manually-triggered
// cross-project liveness scan, purging stale runner rows and starting a
// runner for any registered project that has eligible work and none
// running.
package wake

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steroids-run/steroids/internal/cli/paths"
	"github.com/steroids-run/steroids/internal/cli/shared"
	"github.com/steroids-run/steroids/internal/control"
	"github.com/steroids-run/steroids/internal/wakeup"
)

// NewCommand creates the scan command, registered under three names
// ("purge", "cleanup", "wakeup") that all run the identical scan:
// wakeup starts runners for idle projects as its primary purpose, purge
// and cleanup name the same scan for the stale-runner-row side effect it
// always performs first.
func NewCommand() *cobra.Command {
	var dryRun bool
	var projectsFile string

	cmd := &cobra.Command{
		Use:     "wakeup",
		Aliases: []string{"purge", "cleanup"},
		Short:   "Scan registered projects, purge stale runner rows, and start idle ones",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), dryRun, projectsFile)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would start without spawning anything")
	cmd.Flags().StringVar(&projectsFile, "projects-file", "", "Path to the project registry (default: ~/.steroids/projects.json)")
	return cmd
}

func run(ctx context.Context, dryRun bool, projectsFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	globalDBPath, err := paths.GlobalDBPath()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve control plane path", err)
	}
	ctrl, err := control.Open(ctx, globalDBPath)
	if err != nil {
		return shared.NewExitError(shared.ExitConfigOrUninit, "open control plane", err)
	}
	defer ctrl.Close()

	logDir, err := paths.GlobalRunnerLogDir()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve runner log directory", err)
	}
	self, err := os.Executable()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve own executable", err)
	}

	controller := wakeup.NewController(ctrl)
	result, err := controller.Scan(ctx, wakeup.Options{
		ProjectsFile: projectsFile,
		Binary:       self,
		DaemonLogDir: logDir,
		DryRun:       dryRun,
	})
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "scan projects", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSONResult(result)
	}
	fmt.Printf("purged %d stale runner row(s)\n", result.PurgedStaleRunners)
	for _, p := range result.Projects {
		fmt.Printf("%s: %s", p.ProjectPath, p.Outcome)
		if p.PID != 0 {
			fmt.Printf(" (pid=%d)", p.PID)
		}
		fmt.Println()
	}
	return nil
}
