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

// Package workflow assembles the narration commands into the run state
// machine: fetching, extracting_audio, transcribing, translating_synthesizing,
// composing, remuxing, registering and finally done or failed.
//
// NarrationWorkflow owns one cor.Chain built at construction time. Each Run
// gets its own cor.Context, stage tracker and workspace, so a workflow value
// may serve concurrent runs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/commands"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// ParamReport is where Execute leaves the *model.RunReport of the run.
const ParamReport = "narration.report"

// Journal persists the lifecycle of runs. Begin is called once the run has an
// id, Finish once it reached a terminal stage.
type Journal interface {
	Begin(ctx context.Context, report *model.RunReport) error
	Finish(ctx context.Context, report *model.RunReport) error
}

// EventSink receives stage changes as they happen.
type EventSink interface {
	Publish(event model.RunEvent)
}

// Option customizes a NarrationWorkflow.
type Option func(*NarrationWorkflow)

func WithJournal(journal Journal) Option {
	return func(w *NarrationWorkflow) { w.journal = journal }
}

func WithEvents(sink EventSink) Option {
	return func(w *NarrationWorkflow) { w.events = sink }
}

// stageOf maps the chain's commands onto the run stages.
var stageOf = map[string]model.Stage{
	commands.FetchSourceName:      model.StageFetching,
	commands.RegisterOriginalName: model.StageFetching,
	commands.ExtractAudioName:     model.StageExtractingAudio,
	commands.TranscribeName:       model.StageTranscribing,
	commands.NarrateName:          model.StageNarrating,
	commands.ComposeName:          model.StageComposing,
	commands.RemuxName:            model.StageRemuxing,
	commands.RegisterNarratedName: model.StageRegistering,
}

type runKey struct{}

// runState is the per-run data the chain observer needs.
type runState struct {
	report  *model.RunReport
	tracker *model.StageTracker
}

// NarrationWorkflow runs one narration request end to end.
type NarrationWorkflow struct {
	cor.BaseCommand
	config  *cloud.Config
	store   commands.Store
	journal Journal
	events  EventSink
	chain   *cor.BaseChain
	publish *cor.BaseChain
	cleanup cor.Command
}

// NewNarrationWorkflow validates the collaborators and builds the chain. A
// missing collaborator is a configuration error reported before any run.
func NewNarrationWorkflow(
	config *cloud.Config,
	store commands.Store,
	collaborators Collaborators,
	opts ...Option) (*NarrationWorkflow, error) {

	if err := collaborators.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: no artifact store configured", model.ErrConfiguration)
	}

	out := &NarrationWorkflow{
		BaseCommand: *cor.NewBaseCommand("narration-workflow"),
		config:      config,
		store:       store,
	}
	out.InputParamName = commands.ParamRequest
	for _, opt := range opts {
		opt(out)
	}
	out.initializeChain(collaborators)
	return out, nil
}

func (w *NarrationWorkflow) initializeChain(c Collaborators) {
	chain := cor.NewBaseChain(w.GetName() + "-stages")
	chain.AddCommand(commands.NewFetchSource(commands.FetchSourceName, c.Downloader))
	chain.AddCommand(commands.NewRegisterOriginal(commands.RegisterOriginalName, w.store))
	chain.AddCommand(commands.NewExtractAudio(commands.ExtractAudioName, c.Transcoder))
	chain.AddCommand(commands.NewTranscribe(
		commands.TranscribeName,
		c.Transcriber,
		w.config.Transcriber.ModelSize,
		secondsOf(w.config.Timeouts.TranscribeSeconds)))
	chain.AddCommand(commands.NewNarrate(
		commands.NarrateName,
		c.Translator,
		c.Synthesizer,
		c.Transcoder,
		w.config.TTS.SampleRate,
		w.config.Pipeline.Workers))
	chain.AddCommand(commands.NewCompose(commands.ComposeName, c.Composer, c.Measure))
	chain.AddCommand(commands.NewRemux(commands.RemuxName, c.Remuxer))
	chain.AddCommand(commands.NewRegisterNarrated(
		commands.RegisterNarratedName, w.store, w.config.Store.SegmentMetadataFile))
	chain.Observe(w.observe)
	w.chain = chain

	// Publishing is best effort: every target is attempted and failures only
	// become warnings on the report.
	publish := cor.NewBaseChain(w.GetName() + "-publish")
	publish.ContinueOnFailure(true)
	if c.Mirror != nil {
		publish.AddCommand(commands.NewMirrorArtifact(commands.MirrorArtifactName, c.Mirror, w.store))
	}
	if c.Inserter != nil {
		publish.AddCommand(commands.NewSegmentsToBigQuery(commands.SegmentsToBigQueryName, c.Inserter))
	}
	w.publish = publish

	w.cleanup = commands.NewCleanupWorkspace(commands.CleanupWorkspaceName, w.config.Pipeline.KeepWorkspace)
}

// Stages returns the chained command names in execution order.
func (w *NarrationWorkflow) Stages() []string {
	return w.chain.Commands()
}

func (w *NarrationWorkflow) observe(ctx context.Context, command cor.Command) {
	state, ok := ctx.Value(runKey{}).(*runState)
	if !ok {
		return
	}
	stage, ok := stageOf[command.GetName()]
	if !ok || stage == state.tracker.Current() {
		return
	}
	if err := state.tracker.Advance(stage); err != nil {
		slog.WarnContext(ctx, "stage transition rejected", "run_id", state.report.RunID, "error", err)
		return
	}
	slog.InfoContext(ctx, "stage started", "run_id", state.report.RunID, "stage", stage)
	w.emit(state.report.RunID, stage, model.RunRunning, "")
}

func (w *NarrationWorkflow) emit(runID string, stage model.Stage, status model.RunStatus, message string) {
	if w.events == nil {
		return
	}
	w.events.Publish(model.RunEvent{
		RunID:   runID,
		Stage:   stage,
		Status:  status,
		Message: message,
		At:      time.Now().UTC(),
	})
}

// Execute lets the workflow sit in a chain behind a trigger reader. The
// report is stored under ParamReport and a failed run is recorded as the
// workflow's error.
func (w *NarrationWorkflow) Execute(context cor.Context) {
	req, _ := context.Get(commands.ParamRequest).(*model.NarrationRequest)
	report, err := w.Run(context.GetContext(), req)
	context.Add(ParamReport, report)
	if err != nil {
		w.Fail(context, err)
		return
	}
	w.Succeed(context)
}

// Start runs req in the background and returns its run id at once. The
// channel delivers the final report and is then closed.
func (w *NarrationWorkflow) Start(ctx context.Context, req *model.NarrationRequest) (string, <-chan *model.RunReport) {
	runID := model.NewRunID()
	done := make(chan *model.RunReport, 1)
	go func() {
		defer close(done)
		report, _ := w.run(ctx, runID, req)
		done <- report
	}()
	return runID, done
}

// Run executes the pipeline for req and blocks until the run is over.
//
// Inputs:
//   - ctx: cancelling it stops the chain before its next command; cleanup
//     still runs.
//   - req: the source (a URL or a local file) and the voice. An empty voice
//     falls back to the configured default voice.
//
// Outputs:
//   - The run report, always non-nil. It carries the stage transitions, the
//     produced artifacts and the final status.
//   - A *model.StageError when the run failed, naming the stage and the error
//     kind. Rejected requests fail with model.ErrConfiguration before any
//     workspace is created.
func (w *NarrationWorkflow) Run(ctx context.Context, req *model.NarrationRequest) (*model.RunReport, error) {
	return w.run(ctx, model.NewRunID(), req)
}

func (w *NarrationWorkflow) run(ctx context.Context, runID string, req *model.NarrationRequest) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:     runID,
		Status:    model.RunRunning,
		Stage:     model.StagePending,
		StartedAt: time.Now().UTC(),
	}
	log := slog.Default().With("run_id", report.RunID)

	if req != nil {
		report.Source = req.Source()
		if req.Voice == "" {
			clone := *req
			clone.Voice = w.config.Pipeline.DefaultVoice
			req = &clone
		}
	}
	voice, err := req.Validate()
	if err != nil {
		log.ErrorContext(ctx, "narration request rejected", "error", err)
		return reject(report, model.ErrConfiguration, err)
	}
	report.Voice = voice

	workspace := filepath.Join(w.config.Pipeline.WorkDir, report.RunID)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		log.ErrorContext(ctx, "could not create workspace", "error", err)
		return reject(report, model.ErrStorage, err)
	}

	if w.journal != nil {
		if err := w.journal.Begin(ctx, report); err != nil {
			log.WarnContext(ctx, "run journal unavailable", "error", err)
		}
	}
	log.InfoContext(ctx, "narration run started", "source", report.Source, "voice", voice, "workspace", workspace)

	state := &runState{report: report, tracker: model.NewStageTracker()}
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.WithValue(ctx, runKey{}, state))
	chCtx.Add(commands.ParamRequest, req)
	chCtx.Add(commands.ParamVoice, voice)
	chCtx.Add(commands.ParamRunID, report.RunID)
	chCtx.Add(commands.ParamWorkspace, workspace)
	defer chCtx.Close()

	w.chain.Execute(chCtx)
	w.collect(chCtx, report)

	var runErr error
	if chCtx.HasErrors() {
		runErr = w.fail(chCtx, state)
	} else {
		_ = state.tracker.Advance(model.StageDone)
		report.Status = model.RunSucceeded
		w.publishArtifacts(chCtx, report)
	}

	w.cleanup.Execute(chCtx)

	report.Transitions = state.tracker.History()
	report.Stage = state.tracker.Current()
	report.FinishedAt = time.Now().UTC()
	if w.journal != nil {
		// The run context may already be cancelled; the journal must still
		// learn how the run ended.
		if err := w.journal.Finish(context.WithoutCancel(ctx), report); err != nil {
			log.WarnContext(ctx, "run journal update failed", "error", err)
		}
	}
	w.emit(report.RunID, report.Stage, report.Status, report.String())

	if runErr != nil {
		log.ErrorContext(ctx, "narration run failed", "stage", report.FailedStage, "error", runErr, "summary", report.Summary())
	} else {
		log.InfoContext(ctx, "narration run finished", "output", report.OutputPath, "summary", report.Summary())
	}
	return report, runErr
}

// reject fails a run that never left the pending stage.
func reject(report *model.RunReport, kind error, err error) (*model.RunReport, error) {
	stageErr := model.NewStageError(model.StagePending, kind, err)
	report.Status = model.RunFailed
	report.FailedStage = model.StagePending
	report.Stage = model.StageFailed
	report.Error = stageErr.Error()
	report.FinishedAt = time.Now().UTC()
	return report, stageErr
}

// collect copies what the chain produced into the report.
func (w *NarrationWorkflow) collect(chCtx cor.Context, report *model.RunReport) {
	if id, ok := chCtx.Get(commands.ParamVideoID).(string); ok {
		report.VideoID = id
	}
	if outcome, ok := chCtx.Get(commands.ParamOutcome).(*commands.NarrationOutcome); ok {
		report.SegmentsTotal = outcome.Total
		report.SegmentsNarrated = outcome.Narrated
		report.SegmentsDegraded = outcome.Degraded
		report.SkippedSegments = outcome.Skipped
	} else if transcript, ok := chCtx.Get(commands.ParamTranscript).([]model.TranscriptSegment); ok {
		report.SegmentsTotal = len(transcript)
	}
	if rec, ok := chCtx.Get(commands.ParamRecord).(*model.VideoRecord); ok {
		report.OutputPath = rec.Narrated()
	}
}

// fail turns the first chain error into a StageError, moves the tracker to
// failed and settles the store record.
func (w *NarrationWorkflow) fail(chCtx cor.Context, state *runState) error {
	ctx := chCtx.GetContext()
	name, cause := chCtx.FirstError()

	stage, ok := stageOf[name]
	if !ok {
		stage = state.tracker.Current()
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		if !errors.Is(cause, model.ErrCancelled) {
			cause = fmt.Errorf("%w: %w", model.ErrCancelled, cause)
		}
		// the chain reports cancellation against the command it did not start
		if current := state.tracker.Current(); current != model.StagePending {
			stage = current
		}
	}
	stageErr := model.NewStageError(stage, nil, cause)

	if current := state.tracker.Current(); current != stage && !current.Terminal() {
		_ = state.tracker.Advance(stage)
	}
	_ = state.tracker.Advance(model.StageFailed)

	report := state.report
	report.Status = model.RunFailed
	report.FailedStage = stage
	report.Error = stageErr.Error()

	if report.VideoID != "" {
		var err error
		if w.config.Pipeline.RecordFailures {
			err = w.store.MarkFailed(report.VideoID, stageErr)
		} else {
			err = w.store.RevertToOriginal(report.VideoID)
		}
		if err != nil {
			slog.WarnContext(ctx, "could not settle video record", "run_id", report.RunID, "video_id", report.VideoID, "error", err)
			report.Warnings = append(report.Warnings, err.Error())
		}
	}
	return stageErr
}

func (w *NarrationWorkflow) publishArtifacts(chCtx cor.Context, report *model.RunReport) {
	if len(w.publish.Commands()) == 0 {
		return
	}
	w.publish.Execute(chCtx)
	if !chCtx.HasErrors() {
		return
	}
	warnings := make([]string, 0, len(chCtx.GetErrors()))
	for name, err := range chCtx.GetErrors() {
		warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
	}
	sort.Strings(warnings)
	report.Warnings = append(report.Warnings, warnings...)
}

func secondsOf(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
