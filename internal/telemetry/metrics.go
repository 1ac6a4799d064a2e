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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters and histograms the engine's components
// record against during a run.
type Metrics struct {
	meter metric.Meter

	cherryPicksTotal   metric.Int64Counter
	conflictsTotal     metric.Int64Counter
	rejectionsTotal    metric.Int64Counter
	validationFailures metric.Int64Counter
	runnersSpawned     metric.Int64Counter

	taskDuration       metric.Float64Histogram
	mergeQueueDuration metric.Float64Histogram
}

func newMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	meter := meterProvider.Meter("steroids")
	m := &Metrics{meter: meter}

	var err error

	m.cherryPicksTotal, err = meter.Int64Counter(
		"steroids_cherry_picks_total",
		metric.WithDescription("Total number of commits cherry-picked onto the integration branch"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, err
	}

	m.conflictsTotal, err = meter.Int64Counter(
		"steroids_merge_conflicts_total",
		metric.WithDescription("Total number of cherry-pick conflicts encountered"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejectionsTotal, err = meter.Int64Counter(
		"steroids_reviewer_rejections_total",
		metric.WithDescription("Total number of reviewer REJECT decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	m.validationFailures, err = meter.Int64Counter(
		"steroids_validation_failures_total",
		metric.WithDescription("Total number of validation command failures or overflows"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.runnersSpawned, err = meter.Int64Counter(
		"steroids_runners_spawned_total",
		metric.WithDescription("Total number of runner processes spawned by the wakeup controller"),
		metric.WithUnit("{runner}"),
	)
	if err != nil {
		return nil, err
	}

	m.taskDuration, err = meter.Float64Histogram(
		"steroids_task_duration_seconds",
		metric.WithDescription("Task execution duration from claim to terminal status"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.mergeQueueDuration, err = meter.Float64Histogram(
		"steroids_merge_queue_duration_seconds",
		metric.WithDescription("Time a workstream spent queued for the merge lock before acquiring it"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCherryPick records a commit applied to the integration branch,
// tagged by whether the apply went through the conflict sub-loop.
func (m *Metrics) RecordCherryPick(ctx context.Context, hadConflict bool) {
	m.cherryPicksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("had_conflict", hadConflict),
	))
}

// RecordConflict records one cherry-pick conflict iteration.
func (m *Metrics) RecordConflict(ctx context.Context, workstreamID string) {
	m.conflictsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workstream", workstreamID),
	))
}

// RecordRejection records a reviewer REJECT decision during the conflict
// sub-loop.
func (m *Metrics) RecordRejection(ctx context.Context, workstreamID string) {
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workstream", workstreamID),
	))
}

// RecordValidationFailure records a validation gate failure or output
// overflow.
func (m *Metrics) RecordValidationFailure(ctx context.Context, truncated bool) {
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("truncated", truncated),
	))
}

// RecordRunnerSpawned records a runner process started by the wakeup
// controller for a given project.
func (m *Metrics) RecordRunnerSpawned(ctx context.Context, projectPath string) {
	m.runnersSpawned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("project", projectPath),
	))
}

// RecordTaskDuration records the wall-clock time a task spent from claim
// to reaching a terminal status.
func (m *Metrics) RecordTaskDuration(ctx context.Context, status string, duration time.Duration) {
	m.taskDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordMergeQueueDuration records how long a workstream waited for the
// merge lock before acquiring it.
func (m *Metrics) RecordMergeQueueDuration(ctx context.Context, duration time.Duration) {
	m.mergeQueueDuration.Record(ctx, duration.Seconds())
}
