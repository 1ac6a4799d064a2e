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

// Package merge implements "merge": integrating a parallel session's
// completed workstreams back into mainline by cherry-picking each
// workstream's sealed commits in completion order.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steroids-run/steroids/internal/cli/agentset"
	"github.com/steroids-run/steroids/internal/cli/paths"
	"github.com/steroids-run/steroids/internal/cli/shared"
	"github.com/steroids-run/steroids/internal/config"
	"github.com/steroids-run/steroids/internal/control"
	steroidserrors "github.com/steroids-run/steroids/internal/errors"
	"github.com/steroids-run/steroids/internal/gitutil"
	mergeengine "github.com/steroids-run/steroids/internal/merge"
)

// NewCommand creates the "merge" command.
func NewCommand() *cobra.Command {
	var project string
	var sessionID string
	var remote string
	var mainBranch string
	var integrationBranch string
	var validationCommand string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Integrate a parallel session's workstreams into mainline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), project, sessionID, remote, mainBranch, integrationBranch, validationCommand)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project directory (default: current directory)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Parallel session id to merge (required)")
	cmd.Flags().StringVar(&remote, "remote", "", "Git remote to fetch from and push to (default: origin)")
	cmd.Flags().StringVar(&mainBranch, "main-branch", "", "Branch to integrate into (default: main)")
	cmd.Flags().StringVar(&integrationBranch, "integration-branch", "", "Scratch branch used to stage the integration (default: derived from session id)")
	cmd.Flags().StringVar(&validationCommand, "validation-command", "", "Shell command run against the integration branch before pushing (default: engine config, none)")
	cmd.MarkFlagRequired("session")
	return cmd
}

func run(ctx context.Context, project, sessionID, remote, mainBranch, integrationBranch, validationCommand string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dir, err := paths.ResolveProject(project)
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve project", err)
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

	if _, err := ctrl.GetSession(ctx, sessionID); err != nil {
		return translateSessionError(err, sessionID)
	}

	workstreams, err := ctrl.ListWorkstreams(ctx, sessionID)
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "list workstreams", err)
	}
	if len(workstreams) == 0 {
		return steroidserrors.NewFault(steroidserrors.FaultSessionNotFound, "session has no workstreams to merge", "session_id", sessionID)
	}

	registry := agentset.NewRegistry()
	workspaceRoot, err := workspaceRootDir()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve workspace root", err)
	}

	cfg := config.Default()
	validation := cfg.ValidationCommand
	if validationCommand != "" {
		validation = strings.Fields(validationCommand)
	}

	eng := mergeengine.NewEngine(ctrl, registry, gitutil.NewExecRunner(), workspaceRoot)
	result, err := eng.Run(ctx, mergeengine.Options{
		SessionID:         sessionID,
		RunnerID:          "merge-" + sessionID[:8],
		Workstreams:       workstreams,
		ProjectPath:       dir,
		Remote:            remote,
		MainBranch:        mainBranch,
		IntegrationBranch: integrationBranch,
		ValidationCommand: validation,
		Cleanup:           true,
		CompleteSession:   true,
	})
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "merge session", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSONResult(result)
	}
	fmt.Printf("session %s: %s, %d workstream(s), %d commit(s) applied\n",
		sessionID, result.SessionStatus, result.WorkstreamsRun, result.CommitsApplied)
	return nil
}

func translateSessionError(err error, sessionID string) error {
	var nf *steroidserrors.NotFoundError
	if errors.As(err, &nf) {
		return steroidserrors.NewFault(steroidserrors.FaultSessionNotFound, "no such parallel session", "session_id", sessionID)
	}
	return shared.NewExitError(shared.ExitGeneral, "get session", err)
}

func workspaceRootDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home + "/.steroids/workspace", nil
}
