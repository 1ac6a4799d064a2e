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

// Package tasks implements the "tasks" command group: direct, out-of-band
// mutation of the task store, for operator intervention outside the
// normal coder/reviewer/coordinator lifecycle.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steroids-run/steroids/internal/cli/paths"
	"github.com/steroids-run/steroids/internal/cli/shared"
	steroidserrors "github.com/steroids-run/steroids/internal/errors"
	"github.com/steroids-run/steroids/internal/store"
)

var validStatuses = map[string]store.TaskStatus{
	string(store.StatusPending):    store.StatusPending,
	string(store.StatusInProgress): store.StatusInProgress,
	string(store.StatusReview):     store.StatusReview,
	string(store.StatusCompleted):  store.StatusCompleted,
	string(store.StatusDisputed):   store.StatusDisputed,
	string(store.StatusFailed):     store.StatusFailed,
	string(store.StatusSkipped):    store.StatusSkipped,
	string(store.StatusPartial):    store.StatusPartial,
}

// NewCommand creates the "tasks" command group.
func NewCommand() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and mutate the project task store",
	}
	cmd.PersistentFlags().StringVarP(&project, "project", "p", "", "Project directory (default: current directory)")

	cmd.AddCommand(newUpdateCommand(&project))
	cmd.AddCommand(newListCommand(&project))
	return cmd
}

func newUpdateCommand(project *string) *cobra.Command {
	var status string
	var notes string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Transition a task to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			newStatus, ok := validStatuses[status]
			if !ok {
				return shared.NewExitError(shared.ExitInvalidArgs, fmt.Sprintf("invalid --status %q", status), nil)
			}

			dir, err := paths.ResolveProject(*project)
			if err != nil {
				return shared.NewExitError(shared.ExitGeneral, "resolve project", err)
			}
			dbPath, err := paths.ProjectDBPath(dir)
			if err != nil {
				return shared.NewExitError(shared.ExitGeneral, "resolve task store path", err)
			}

			ctx := context.Background()
			st, err := store.Open(ctx, dbPath)
			if err != nil {
				return shared.NewExitError(shared.ExitConfigOrUninit, "open task store", err)
			}
			defer st.Close()

			if err := st.TransitionTask(ctx, taskID, newStatus, store.TransitionOptions{
				Actor: "cli", Notes: notes,
			}); err != nil {
				return translateTaskError(err, taskID)
			}

			task, err := st.GetTask(ctx, taskID)
			if err != nil {
				return translateTaskError(err, taskID)
			}

			if shared.GetJSON() {
				return shared.EmitJSONResult(task)
			}
			fmt.Printf("task %s -> %s\n", task.ID, task.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "New task status (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "Audit notes for this transition")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newListCommand(project *string) *cobra.Command {
	var sectionID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in the project task store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := paths.ResolveProject(*project)
			if err != nil {
				return shared.NewExitError(shared.ExitGeneral, "resolve project", err)
			}
			dbPath, err := paths.ProjectDBPath(dir)
			if err != nil {
				return shared.NewExitError(shared.ExitGeneral, "resolve task store path", err)
			}

			ctx := context.Background()
			st, err := store.Open(ctx, dbPath)
			if err != nil {
				return shared.NewExitError(shared.ExitConfigOrUninit, "open task store", err)
			}
			defer st.Close()

			items, err := st.ListTasks(ctx, sectionID)
			if err != nil {
				return shared.NewExitError(shared.ExitGeneral, "list tasks", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSONResult(items)
			}
			for _, t := range items {
				fmt.Printf("%s\t%s\t%s\n", t.ID, t.Status, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sectionID, "section", "", "Restrict to one section id")
	return cmd
}

// translateTaskError maps the store's untyped NotFoundError onto the
// engine's fault taxonomy so the CLI exit-code table applies.
func translateTaskError(err error, taskID string) error {
	var nf *steroidserrors.NotFoundError
	if errors.As(err, &nf) {
		return steroidserrors.NewFault(steroidserrors.FaultTaskNotFound, "no such task", "task_id", taskID)
	}
	return shared.NewExitError(shared.ExitGeneral, "update task", err)
}
