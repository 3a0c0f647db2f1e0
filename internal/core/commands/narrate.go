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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// Narrate command, the translating_synthesizing stage of a run.
//
// Every transcript segment is an independent job:
//
//  1. translate the source text; on failure keep the source text and flag the
//     segment degraded, the run never aborts on translation;
//  2. synthesize the (possibly degraded) text with the run's voice;
//  3. normalize the clip to a mono WAV at the composer's sample rate.
//
// Jobs go through a worker pool of configurable size (one worker reproduces a
// plain sequential loop). A segment whose synthesis or normalization fails is
// dropped and its index reported; the stage only fails when no segment at all
// could be narrated, or when the run is cancelled.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ClipsDir is the workspace sub directory holding synthesized clips.
const ClipsDir = "clips"

// NarrationOutcome summarizes the per-segment results of the stage.
type NarrationOutcome struct {
	Total    int            `json:"total"`
	Narrated int            `json:"narrated"`
	Degraded int            `json:"degraded"`
	Skipped  []int          `json:"skipped,omitempty"`  // Indices of dropped segments, ascending.
	Failures map[int]string `json:"failures,omitempty"` // Cause per dropped segment.
}

// Narrate translates and synthesizes every transcript segment.
type Narrate struct {
	cor.BaseCommand
	translator      Translator
	synthesizer     Synthesizer
	transcoder      Transcoder
	sampleRate      int
	numberOfWorkers int
	degradedCounter metric.Int64Counter
	segmentsCounter metric.Int64Counter
	droppedCounter  metric.Int64Counter
}

func NewNarrate(
	name string,
	translator Translator,
	synthesizer Synthesizer,
	transcoder Transcoder,
	sampleRate int,
	numberOfWorkers int) *Narrate {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	out := &Narrate{
		BaseCommand:     *cor.NewBaseCommand(name),
		translator:      translator,
		synthesizer:     synthesizer,
		transcoder:      transcoder,
		sampleRate:      sampleRate,
		numberOfWorkers: numberOfWorkers,
	}
	out.InputParamName = ParamTranscript

	out.degradedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.translation.degraded", out.GetName()))
	out.segmentsCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.segments.narrated", out.GetName()))
	out.droppedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.segments.dropped", out.GetName()))
	return out
}

func (n *Narrate) IsExecutable(context cor.Context) bool {
	return n.BaseCommand.IsExecutable(context) &&
		context.Get(ParamWorkspace) != nil &&
		context.Get(ParamVoice) != nil
}

func (n *Narrate) Execute(context cor.Context) {
	transcript := context.Get(ParamTranscript).([]model.TranscriptSegment)
	voice := context.Get(ParamVoice).(model.Voice)
	clipsDir := filepath.Join(context.Get(ParamWorkspace).(string), ClipsDir)

	if err := os.MkdirAll(clipsDir, os.ModePerm); err != nil {
		n.Fail(context, fmt.Errorf("%w: clips dir: %v", model.ErrStorage, err))
		return
	}

	var wg sync.WaitGroup
	jobs := make(chan *narrationJob, len(transcript))
	results := make(chan *narrationResult, len(transcript))

	for w := 1; w <= n.numberOfWorkers; w++ {
		wg.Add(1)
		go n.worker(jobs, results, &wg)
	}

	for i, seg := range transcript {
		jobs <- n.createJob(context.GetContext(), i, seg, voice, clipsDir)
	}
	close(jobs)

	wg.Wait()
	close(results)

	outcome := &NarrationOutcome{Total: len(transcript), Failures: map[int]string{}}
	segments := make([]model.NarrationSegment, 0, len(transcript))
	var lastErr error
	for r := range results {
		if r.err != nil {
			outcome.Skipped = append(outcome.Skipped, r.index)
			outcome.Failures[r.index] = r.err.Error()
			lastErr = r.err
			continue
		}
		if r.segment.Degraded {
			outcome.Degraded++
		}
		segments = append(segments, *r.segment)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })
	sort.Ints(outcome.Skipped)
	outcome.Narrated = len(segments)
	context.Add(ParamOutcome, outcome)

	if err := context.GetContext().Err(); err != nil {
		n.Fail(context, fmt.Errorf("%w: %w", model.ErrCancelled, err))
		return
	}
	if len(segments) == 0 {
		n.Fail(context, fmt.Errorf("%w: %d segments failed, last error: %v", model.ErrNoNarrationProduced, outcome.Total, lastErr))
		return
	}

	slog.InfoContext(context.GetContext(), "narration finished",
		"narrated", outcome.Narrated, "total", outcome.Total, "degraded", outcome.Degraded, "skipped", outcome.Skipped)
	n.Succeed(context)
	context.Add(ParamSegments, segments)
	context.Add(n.GetOutputParam(), segments)
}

// narrationJob carries everything a worker needs for one segment.
type narrationJob struct {
	index    int
	ctx      goctx.Context
	span     trace.Span
	segment  model.TranscriptSegment
	voice    model.Voice
	clipPath string
	wavPath  string
}

// Close ends the job's span.
func (j *narrationJob) Close(status codes.Code, description string) {
	j.span.SetStatus(status, description)
	j.span.End()
}

type narrationResult struct {
	index   int
	segment *model.NarrationSegment
	err     error
}

func (n *Narrate) createJob(ctx goctx.Context, index int, seg model.TranscriptSegment, voice model.Voice, clipsDir string) *narrationJob {
	segCtx, span := n.Tracer.Start(ctx, fmt.Sprintf("%s_segment_%d", n.GetName(), index))
	span.SetAttributes(
		attribute.Int("sequence", index),
		attribute.Float64("start", seg.Start),
		attribute.Float64("end", seg.End),
	)
	return &narrationJob{
		index:    index,
		ctx:      segCtx,
		span:     span,
		segment:  seg,
		voice:    voice,
		clipPath: filepath.Join(clipsDir, fmt.Sprintf("segment_%04d.mp3", index)),
		wavPath:  filepath.Join(clipsDir, fmt.Sprintf("segment_%04d.wav", index)),
	}
}

func (n *Narrate) worker(jobs <-chan *narrationJob, results chan<- *narrationResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		segment, err := n.narrate(j)
		if err != nil {
			n.droppedCounter.Add(j.ctx, 1)
			slog.WarnContext(j.ctx, "segment dropped", "index", j.index, "start", j.segment.Start, "error", err)
			j.Close(codes.Error, "segment dropped")
			results <- &narrationResult{index: j.index, err: err}
			continue
		}
		n.segmentsCounter.Add(j.ctx, 1)
		j.Close(codes.Ok, "segment narrated")
		results <- &narrationResult{index: j.index, segment: segment}
	}
}

func (n *Narrate) narrate(j *narrationJob) (*model.NarrationSegment, error) {
	if err := j.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}

	out := &model.NarrationSegment{
		Index:      j.index,
		Start:      j.segment.Start,
		End:        j.segment.End,
		SourceText: j.segment.Text,
	}

	translated, err := n.translator.Translate(j.ctx, j.segment.Text)
	if err == nil && strings.TrimSpace(translated) == "" {
		err = errors.New("empty translation")
	}
	if err != nil {
		if j.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrCancelled, j.ctx.Err())
		}
		n.degradedCounter.Add(j.ctx, 1)
		slog.WarnContext(j.ctx, model.ErrTranslationDegraded.Error(), "index", j.index, "error", err)
		j.span.SetAttributes(attribute.Bool("degraded", true))
		translated = j.segment.Text
		out.Degraded = true
	}
	out.TranslatedText = strings.TrimSpace(translated)

	clip, err := n.synthesizer.Synthesize(j.ctx, out.TranslatedText, j.voice, j.clipPath)
	if err != nil {
		return nil, err
	}
	if err := n.transcoder.NormalizeClip(j.ctx, clip, j.wavPath, n.sampleRate); err != nil {
		return nil, err
	}
	out.AudioPath = j.wavPath
	return out, nil
}
