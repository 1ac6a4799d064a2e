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

package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steroids-run/steroids/internal/cli/shared"
)

func TestRunTest_UnknownProviderIsInvalidArgs(t *testing.T) {
	err := runTest(context.Background(), "does-not-exist")
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidArgs, exitErr.Code)
}

func TestRunTest_DefaultProviderUnavailableReportsHealthFailed(t *testing.T) {
	// In the test environment no claude/claude-code binary is on PATH, so
	// the default provider is reported unavailable rather than invoked.
	err := runTest(context.Background(), "")
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitHealthFailed, exitErr.Code)
}
