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

package model

import (
	"fmt"
	"sync"
	"time"
)

// Stage is a state of the narration run state machine.
type Stage string

const (
	StagePending         Stage = "pending"
	StageFetching        Stage = "fetching"
	StageExtractingAudio Stage = "extracting_audio"
	StageTranscribing    Stage = "transcribing"
	StageNarrating       Stage = "translating_synthesizing"
	StageComposing       Stage = "composing"
	StageRemuxing        Stage = "remuxing"
	StageRegistering     Stage = "registering"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// stageOrder is the only legal forward path. Failed sits outside the order
// and can be entered from any non-terminal stage.
var stageOrder = map[Stage]int{
	StagePending:         0,
	StageFetching:        1,
	StageExtractingAudio: 2,
	StageTranscribing:    3,
	StageNarrating:       4,
	StageComposing:       5,
	StageRemuxing:        6,
	StageRegistering:     7,
	StageDone:            8,
}

// PipelineStages lists the working stages in execution order.
func PipelineStages() []Stage {
	return []Stage{
		StageFetching, StageExtractingAudio, StageTranscribing, StageNarrating,
		StageComposing, StageRemuxing, StageRegistering,
	}
}

// Terminal reports whether no transition may leave s.
func (s Stage) Terminal() bool { return s == StageDone || s == StageFailed }

// StageTransition is one recorded move of the state machine.
type StageTransition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// StageTracker enforces forward-only transitions for one run. It is safe for
// concurrent use.
type StageTracker struct {
	mu      sync.Mutex
	current Stage
	failed  Stage // stage that was active when the run failed
	history []StageTransition
}

func NewStageTracker() *StageTracker {
	return &StageTracker{current: StagePending}
}

// Advance moves to the given stage. Moving backwards, repeating a stage or
// leaving a terminal stage is rejected.
func (t *StageTracker) Advance(to Stage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.Terminal() {
		return fmt.Errorf("illegal transition %s -> %s: run already finished", t.current, to)
	}
	if to == StageFailed {
		t.failed = t.current
		t.record(to)
		return nil
	}
	next, ok := stageOrder[to]
	if !ok {
		return fmt.Errorf("illegal transition %s -> %s: unknown stage", t.current, to)
	}
	if next <= stageOrder[t.current] {
		return fmt.Errorf("illegal transition %s -> %s: stages only move forward", t.current, to)
	}
	t.record(to)
	return nil
}

func (t *StageTracker) record(to Stage) {
	t.history = append(t.history, StageTransition{From: t.current, To: to, At: time.Now().UTC()})
	t.current = to
}

// Current returns the active stage.
func (t *StageTracker) Current() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// FailedAt returns the stage that was active when the run failed, or "".
func (t *StageTracker) FailedAt() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// History returns a copy of all transitions so far.
func (t *StageTracker) History() []StageTransition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageTransition, len(t.history))
	copy(out, t.history)
	return out
}
