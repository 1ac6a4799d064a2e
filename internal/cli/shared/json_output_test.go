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

package shared

import (
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	fn()
	require.NoError(t, w.Close())
	os.Stdout = orig

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestEmitJSONResult_WrapsDataInSuccessEnvelope(t *testing.T) {
	out := captureStdout(t, func() {
		require.NoError(t, EmitJSONResult(map[string]string{"task_id": "t-1"}))
	})

	var decoded JSONResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.True(t, decoded.Success)
	assert.NotNil(t, decoded.Data)
}

func TestEmitJSONError_PlainErrorUsesGenericCode(t *testing.T) {
	out := captureStdout(t, func() {
		require.NoError(t, EmitJSONError(assertError("boom")))
	})

	var decoded JSONFailure
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.False(t, decoded.Success)
	assert.Equal(t, "ERROR", decoded.Error.Code)
	assert.Equal(t, "boom", decoded.Error.Message)
}

func TestEmitJSONError_FaultErrorCarriesCodeAndDetails(t *testing.T) {
	fault := steroidserrors.NewFault(steroidserrors.FaultTaskNotFound, "no such task", "task_id", "t-9")

	out := captureStdout(t, func() {
		require.NoError(t, EmitJSONError(fault))
	})

	var decoded JSONFailure
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.False(t, decoded.Success)
	assert.Equal(t, "TASK_NOT_FOUND", decoded.Error.Code)
	assert.Equal(t, "no such task", decoded.Error.Message)
	assert.Equal(t, "t-9", decoded.Error.Details["task_id"])
}

type stringError string

func (e stringError) Error() string { return string(e) }

func assertError(msg string) error { return stringError(msg) }
