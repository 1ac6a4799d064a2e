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

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	provider := metric.NewMeterProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := newMetrics(provider)
	require.NoError(t, err)
	return m
}

func TestNewMetrics_InitializesAllInstruments(t *testing.T) {
	m := newTestMetrics(t)

	assert.NotNil(t, m.cherryPicksTotal)
	assert.NotNil(t, m.conflictsTotal)
	assert.NotNil(t, m.rejectionsTotal)
	assert.NotNil(t, m.validationFailures)
	assert.NotNil(t, m.runnersSpawned)
	assert.NotNil(t, m.taskDuration)
	assert.NotNil(t, m.mergeQueueDuration)
}

func TestMetrics_RecordCherryPick_DoesNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordCherryPick(ctx, false)
		m.RecordCherryPick(ctx, true)
	})
}

func TestMetrics_RecordConflictAndRejection_DoesNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordConflict(ctx, "ws-1")
		m.RecordRejection(ctx, "ws-1")
	})
}

func TestMetrics_RecordValidationFailure_DoesNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordValidationFailure(ctx, true)
		m.RecordValidationFailure(ctx, false)
	})
}

func TestMetrics_RecordRunnerSpawned_DoesNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordRunnerSpawned(ctx, "/projects/a")
	})
}

func TestMetrics_RecordDurations_DoesNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordTaskDuration(ctx, "completed", 2*time.Second)
		m.RecordMergeQueueDuration(ctx, 500*time.Millisecond)
	})
}
