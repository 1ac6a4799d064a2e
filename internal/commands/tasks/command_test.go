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

package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steroids-run/steroids/internal/cli/paths"
	"github.com/steroids-run/steroids/internal/store"
)

func seedTask(t *testing.T, project, id string, status store.TaskStatus) {
	t.Helper()
	dbPath, err := paths.ProjectDBPath(project)
	require.NoError(t, err)
	st, err := store.Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.CreateTask(context.Background(), store.Task{ID: id, Title: "x", Status: status}, "test"))
}

func TestUpdateCommand_TransitionsTask(t *testing.T) {
	dir := t.TempDir()
	seedTask(t, dir, "t1", store.StatusInProgress)

	cmd := NewCommand()
	cmd.SetArgs([]string{"update", "t1", "--project", dir, "--status", "review"})
	require.NoError(t, cmd.Execute())

	dbPath, err := paths.ProjectDBPath(dir)
	require.NoError(t, err)
	st, err := store.Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer st.Close()
	task, err := st.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, store.StatusReview, task.Status)
}

func TestUpdateCommand_InvalidStatusRejected(t *testing.T) {
	dir := t.TempDir()
	seedTask(t, dir, "t1", store.StatusInProgress)

	cmd := NewCommand()
	cmd.SetArgs([]string{"update", "t1", "--project", dir, "--status", "not-a-status"})
	require.Error(t, cmd.Execute())
}

func TestUpdateCommand_UnknownTaskIsNotFoundFault(t *testing.T) {
	dir := t.TempDir()
	_, err := paths.ProjectDBPath(dir)
	require.NoError(t, err)

	cmd := NewCommand()
	cmd.SetArgs([]string{"update", "missing", "--project", dir, "--status", "completed"})
	err = cmd.Execute()
	require.Error(t, err)
}
