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

package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/commands"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/store"
	"github.com/jaycherian/go-media-narrator/internal/core/timeline"
	"github.com/jaycherian/go-media-narrator/internal/core/workflow"
	"github.com/jaycherian/go-media-narrator/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJournal struct {
	mu       sync.Mutex
	begun    []string
	finished []*model.RunReport
}

func (j *recordingJournal) Begin(_ context.Context, report *model.RunReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.begun = append(j.begun, report.RunID)
	return nil
}

func (j *recordingJournal) Finish(_ context.Context, report *model.RunReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, report)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.RunEvent
}

func (s *recordingSink) Publish(event model.RunEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

type fixture struct {
	config      *cloud.Config
	artifacts   *store.ArtifactStore
	downloader  *testutil.FakeDownloader
	transcoder  *testutil.FakeTranscoder
	transcriber *testutil.FakeTranscriber
	translator  *testutil.FakeTranslator
	synthesizer *testutil.FakeSynthesizer
	remuxer     *testutil.FakeRemuxer
	composer    commands.Composer
	mirror      *testutil.FakeMirror
	inserter    *testutil.FakeInserter
	journal     *recordingJournal
	events      *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	config := testutil.GetConfig(t)
	artifacts, err := store.Open(config.Store.BaseDir, store.LoadExisting)
	require.NoError(t, err)
	return &fixture{
		config:      config,
		artifacts:   artifacts,
		downloader:  &testutil.FakeDownloader{Title: "lesson"},
		transcoder:  &testutil.FakeTranscoder{AudioSeconds: 30},
		transcriber: &testutil.FakeTranscriber{Segments: threeSegments()},
		translator:  &testutil.FakeTranslator{},
		synthesizer: &testutil.FakeSynthesizer{SampleRate: config.TTS.SampleRate, ClipSeconds: 5},
		remuxer:     &testutil.FakeRemuxer{},
		composer:    timeline.NewComposer(config.TTS.SampleRate),
		journal:     &recordingJournal{},
		events:      &recordingSink{},
	}
}

func (f *fixture) workflow(t *testing.T) *workflow.NarrationWorkflow {
	t.Helper()
	collaborators := workflow.Collaborators{
		Downloader:  f.downloader,
		Transcoder:  f.transcoder,
		Transcriber: f.transcriber,
		Translator:  f.translator,
		Synthesizer: f.synthesizer,
		Composer:    f.composer,
		Remuxer:     f.remuxer,
		Measure:     timeline.Duration,
	}
	if f.mirror != nil {
		collaborators.Mirror = f.mirror
	}
	if f.inserter != nil {
		collaborators.Inserter = f.inserter
	}
	wf, err := workflow.NewNarrationWorkflow(f.config, f.artifacts, collaborators,
		workflow.WithJournal(f.journal), workflow.WithEvents(f.events))
	require.NoError(t, err)
	return wf
}

func threeSegments() []model.TranscriptSegment {
	return []model.TranscriptSegment{
		{Start: 0, End: 5, Text: "first line"},
		{Start: 10, End: 15, Text: "second line"},
		{Start: 20, End: 25, Text: "third line"},
	}
}

func request() *model.NarrationRequest {
	return &model.NarrationRequest{SourceURL: "https://www.youtube.com/watch?v=abc", Voice: "ngoclam"}
}

func stagesOf(transitions []model.StageTransition) []model.Stage {
	out := make([]model.Stage, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, tr.To)
	}
	return out
}

func TestRunNarratesAroundFailedSegment(t *testing.T) {
	f := newFixture(t)
	f.synthesizer.Fail = []string{"second"}
	wf := f.workflow(t)

	report, err := wf.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, model.RunSucceeded, report.Status)
	assert.Equal(t, model.StageDone, report.Stage)
	assert.Equal(t, "2 of 3 segments narrated", report.Summary())
	assert.Equal(t, []int{1}, report.SkippedSegments)
	assert.Equal(t, model.VoiceNgocLam, report.Voice)
	assert.Equal(t, append(model.PipelineStages(), model.StageDone), stagesOf(report.Transitions))

	rec, err := f.artifacts.Get(report.VideoID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, rec.Narrated(), report.OutputPath)
	assert.FileExists(t, report.OutputPath)

	track := testutil.ReadWAV(t, filepath.Join(f.config.Pipeline.WorkDir, report.RunID, commands.TrackFile))
	assert.Equal(t, f.config.TTS.SampleRate, track.SampleRate)
	assert.InDelta(t, 30.0, track.Seconds(), 0.01)
	assert.Greater(t, track.Peak(0.5, 4.5), 0, "first segment is spoken")
	assert.Zero(t, track.Peak(10, 15), "failed segment stays silent")
	assert.Greater(t, track.Peak(20.5, 24.5), 0, "third segment is spoken")

	exports, err := f.artifacts.Segments(report.VideoID)
	require.NoError(t, err)
	require.Len(t, exports, 2)
	assert.FileExists(t, f.config.Store.SegmentMetadataFile)

	require.Len(t, f.journal.begun, 1)
	require.Len(t, f.journal.finished, 1)
	assert.Equal(t, model.RunSucceeded, f.journal.finished[0].Status)
	require.NotEmpty(t, f.events.events)
	assert.Equal(t, model.StageFetching, f.events.events[0].Stage)
	assert.Equal(t, model.StageDone, f.events.events[len(f.events.events)-1].Stage)
}

func TestRunWithEmptyTranscriptStops(t *testing.T) {
	f := newFixture(t)
	f.transcriber.Segments = nil
	wf := f.workflow(t)

	report, err := wf.Run(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEmptyTranscript)

	var stageErr *model.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, model.StageTranscribing, stageErr.Stage)
	assert.Equal(t, model.StageTranscribing, report.FailedStage)
	assert.Equal(t, model.StageFailed, report.Stage)

	assert.Zero(t, f.translator.Count())
	assert.Zero(t, f.synthesizer.Count())
	assert.Zero(t, f.remuxer.Count())

	rec, err := f.artifacts.Get(report.VideoID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOriginalOnly, rec.Status, "default config leaves failed runs original_only")
	assert.Nil(t, rec.NarratedPath)
}

func TestRunWithoutAnyNarratedSegment(t *testing.T) {
	for _, recordFailures := range []bool{true, false} {
		name := "revert"
		want := model.StatusOriginalOnly
		if recordFailures {
			name = "record"
			want = model.StatusFailed
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.config.Pipeline.RecordFailures = recordFailures
			f.synthesizer.Fail = []string{"line"}
			wf := f.workflow(t)

			report, err := wf.Run(context.Background(), request())
			assert.ErrorIs(t, err, model.ErrNoNarrationProduced)
			assert.Equal(t, model.StageNarrating, report.FailedStage)
			assert.Equal(t, "0 of 3 segments narrated", report.Summary())
			assert.Equal(t, []int{0, 1, 2}, report.SkippedSegments)
			assert.Zero(t, f.remuxer.Count())

			rec, err := f.artifacts.Get(report.VideoID)
			require.NoError(t, err)
			assert.Equal(t, want, rec.Status)
			assert.True(t, rec.Consistent())
		})
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.transcoder.OnExtract = cancel
	wf := f.workflow(t)

	report, err := wf.Run(ctx, request())
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Equal(t, model.StageExtractingAudio, report.FailedStage)
	assert.Zero(t, f.transcriber.Count())

	require.Len(t, f.journal.finished, 1)
	assert.Equal(t, model.RunFailed, f.journal.finished[0].Status)
}

func TestRunRejectsInvalidRequestBeforeAnyCall(t *testing.T) {
	f := newFixture(t)
	wf := f.workflow(t)

	for _, req := range []*model.NarrationRequest{
		nil,
		{},
		{SourceURL: "https://youtu.be/x", LocalPath: "a.mp4"},
		{SourceURL: "https://youtu.be/x", Voice: "robot"},
	} {
		report, err := wf.Run(context.Background(), req)
		assert.ErrorIs(t, err, model.ErrConfiguration)
		assert.Equal(t, model.StagePending, report.FailedStage)
		assert.Equal(t, model.RunFailed, report.Status)
	}
	assert.Zero(t, f.downloader.Count())
	assert.Zero(t, f.transcoder.Extracts.Count())
	assert.Empty(t, f.journal.begun)
	assert.Empty(t, f.artifacts.ListAll())
}

func TestRunUsesDefaultVoice(t *testing.T) {
	f := newFixture(t)
	f.config.Pipeline.DefaultVoice = string(model.VoiceGiaHuy)
	wf := f.workflow(t)

	req := request()
	req.Voice = ""
	report, err := wf.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.VoiceGiaHuy, report.Voice)
	assert.Empty(t, req.Voice, "the caller's request is not modified")
}

func TestMissingCollaboratorIsAConfigurationError(t *testing.T) {
	config := testutil.GetConfig(t)
	_, err := workflow.NewNarrationWorkflow(config, nil, workflow.Collaborators{})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestPublishFailuresBecomeWarnings(t *testing.T) {
	f := newFixture(t)
	f.mirror = &testutil.FakeMirror{Err: errors.New("bucket unavailable")}
	f.inserter = &testutil.FakeInserter{}
	wf := f.workflow(t)

	report, err := wf.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, report.Status)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], commands.MirrorArtifactName)
	assert.Len(t, f.inserter.Rows, 3)
}

func TestWorkspaceRemovedUnlessKept(t *testing.T) {
	f := newFixture(t)
	f.config.Pipeline.KeepWorkspace = false
	wf := f.workflow(t)

	report, err := wf.Run(context.Background(), request())
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(f.config.Pipeline.WorkDir, report.RunID))
	assert.True(t, os.IsNotExist(statErr))
	assert.FileExists(t, report.OutputPath, "the narrated video lives in the store")
}

func TestExecuteBehindTriggerReader(t *testing.T) {
	f := newFixture(t)
	wf := f.workflow(t)

	chain := cor.NewBaseChain("narration-listener")
	chain.AddCommand(commands.NewNarrationTriggerReader(commands.TriggerReaderName))
	chain.AddCommand(wf)

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, testutil.GetTestTriggerMessageText())
	chain.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors(), chainCtx.GetErrors())

	report := chainCtx.Get(workflow.ParamReport).(*model.RunReport)
	assert.Equal(t, model.RunSucceeded, report.Status)
	assert.Equal(t, 1, f.downloader.Count())
	assert.True(t, cloud.Acknowledge(chainCtx))
}

func TestStartRunsInBackground(t *testing.T) {
	f := newFixture(t)
	wf := f.workflow(t)

	runID, done := wf.Start(context.Background(), request())
	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, runID, report.RunID)
	assert.Equal(t, model.RunSucceeded, report.Status)
	_, open := <-done
	assert.False(t, open)
}
