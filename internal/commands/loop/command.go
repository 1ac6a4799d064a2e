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

// Package loop implements the foreground claim-coder-review cycle run
// inside a single checkout (a project root or a workstream clone).
package loop

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steroids-run/steroids/internal/cli/agentset"
	"github.com/steroids-run/steroids/internal/cli/paths"
	"github.com/steroids-run/steroids/internal/cli/runloop"
	"github.com/steroids-run/steroids/internal/cli/shared"
	steroidserrors "github.com/steroids-run/steroids/internal/errors"
	"github.com/steroids-run/steroids/internal/gitutil"
	steroidslog "github.com/steroids-run/steroids/internal/log"
	"github.com/steroids-run/steroids/internal/orchestrator"
	"github.com/steroids-run/steroids/internal/store"
)

// NewCommand creates the "loop" command.
func NewCommand() *cobra.Command {
	var once bool
	var section string

	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Drive the task backlog in the current checkout",
		Long: `loop repeatedly claims the highest-precedence eligible task and drives
it one coder or reviewer phase forward, until no eligible task remains.
Pass --once to run a single tick instead of looping to exhaustion.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), once, section)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single tick and exit")
	cmd.Flags().StringVar(&section, "section", "", "Restrict to one section, by id or name")
	return cmd
}

func run(ctx context.Context, once bool, section string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dir, err := os.Getwd()
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve working directory", err)
	}
	dbPath, err := paths.ProjectDBPath(dir)
	if err != nil {
		return shared.NewExitError(shared.ExitGeneral, "resolve task store path", err)
	}

	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return shared.NewExitError(shared.ExitConfigOrUninit, "open task store", err)
	}
	defer st.Close()

	sectionFilter, err := resolveSectionFilter(ctx, st, section)
	if err != nil {
		return err
	}

	registry := agentset.NewRegistry()
	eng := orchestrator.NewEngine(st, registry)
	eng.CoderProviderName = agentset.DefaultProviderName
	eng.ReviewerProviderName = agentset.DefaultProviderName
	eng.CoordinatorProviderName = agentset.DefaultProviderName

	git := gitutil.New(gitutil.NewExecRunner(), dir)
	logger := steroidslog.New(steroidslog.FromEnv())

	ticks := 0
	for {
		result, err := runloop.Tick(ctx, eng, git, logger, runloop.Options{SectionFilter: sectionFilter})
		if err != nil {
			return shared.NewExitError(shared.ExitGeneral, "run loop tick", err)
		}
		if !result.Handled {
			break
		}
		ticks++
		if shared.GetJSON() {
			if err := shared.EmitJSONResult(result); err != nil {
				return err
			}
		} else {
			fmt.Printf("tick %d: task %s -> %s\n", ticks, result.TaskID, result.Action)
		}
		if once {
			break
		}
	}

	if ticks == 0 && !shared.GetJSON() {
		fmt.Println("no eligible work")
	}
	return nil
}

// resolveSectionFilter resolves section as either an id prefix or an
// exact section name, per the "--section <id|name>" contract.
func resolveSectionFilter(ctx context.Context, st *store.Store, section string) (string, error) {
	if section == "" {
		return "", nil
	}

	sec, err := st.ResolveSectionPrefix(ctx, section)
	if err == nil {
		return sec.ID, nil
	}

	var nf *steroidserrors.NotFoundError
	if !errors.As(err, &nf) {
		return "", shared.NewExitError(shared.ExitGeneral, "resolve section", err)
	}

	sections, listErr := st.ListSections(ctx)
	if listErr != nil {
		return "", shared.NewExitError(shared.ExitGeneral, "list sections", listErr)
	}
	for _, s := range sections {
		if s.Name == section {
			return s.ID, nil
		}
	}
	return "", steroidserrors.NewFault(steroidserrors.FaultSectionNotFound, "no such section", "section", section)
}
