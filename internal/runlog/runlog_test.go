// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runlog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/runlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(id string, started time.Time) *model.RunReport {
	return &model.RunReport{
		RunID:     id,
		Source:    "https://youtu.be/abc",
		Voice:     model.VoiceGiaHuy,
		Status:    model.RunRunning,
		Stage:     model.StagePending,
		StartedAt: started,
	}
}

func TestBeginFinishAndList(t *testing.T) {
	ctx := context.Background()
	journal, err := runlog.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer journal.Close()

	now := time.Now().UTC()
	first := report("run_1", now.Add(-time.Minute))
	second := report("run_2", now)
	require.NoError(t, journal.Begin(ctx, first))
	require.NoError(t, journal.Begin(ctx, second))

	first.Status = model.RunSucceeded
	first.Stage = model.StageDone
	first.VideoID = "vid_1"
	first.SegmentsTotal, first.SegmentsNarrated = 3, 2
	first.FinishedAt = now
	require.NoError(t, journal.Finish(ctx, first))

	got, err := journal.Get(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, got.Status)
	assert.Equal(t, "vid_1", got.VideoID)
	assert.Equal(t, "2 of 3 segments narrated", got.Summary())

	runs, err := journal.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_2", runs[0].RunID, "newest first")

	runs, err = journal.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = journal.Get(ctx, "run_missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFinishWithoutBegin(t *testing.T) {
	ctx := context.Background()
	journal, err := runlog.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer journal.Close()

	r := report("run_x", time.Now())
	r.Status = model.RunFailed
	r.Error = "stage pending: invalid configuration"
	require.NoError(t, journal.Finish(ctx, r))

	got, err := journal.Get(ctx, "run_x")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, got.Status)
	assert.Equal(t, r.Error, got.Error)
}

func TestReopenMarksRunningRunsInterrupted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	journal, err := runlog.Open(path)
	require.NoError(t, err)
	require.NoError(t, journal.Begin(ctx, report("run_crashed", time.Now())))
	require.NoError(t, journal.Close())

	journal, err = runlog.Open(path)
	require.NoError(t, err, "migrations are idempotent")
	defer journal.Close()

	got, err := journal.Get(ctx, "run_crashed")
	require.NoError(t, err)
	assert.Equal(t, model.RunInterrupted, got.Status)
	assert.Equal(t, "interrupted by restart", got.Error)

	n, err := journal.MarkInterrupted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
