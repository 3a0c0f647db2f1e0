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
	"errors"
	"fmt"
)

// Error kinds raised by the pipeline. Stage failures wrap one of these in a
// StageError so callers can match with errors.Is.
var (
	ErrDownload            = errors.New("download failed")
	ErrTranscode           = errors.New("transcode failed")
	ErrEmptyTranscript     = errors.New("transcript is empty, nothing to narrate")
	ErrTranslationDegraded = errors.New("translation degraded to source text")
	ErrSynthesis           = errors.New("speech synthesis failed")
	ErrNoNarrationProduced = errors.New("no segment could be narrated")
	ErrCompose             = errors.New("timeline composition failed")
	ErrRemux               = errors.New("remux failed")
	ErrStorage             = errors.New("artifact storage failed")
	ErrConfiguration       = errors.New("invalid configuration")
	ErrNotFound            = errors.New("not found")
	ErrCancelled           = errors.New("run cancelled")
)

// StageError reports which pipeline stage failed, the error kind and the cause.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

// NewStageError builds a StageError. A nil kind is inferred from err when it
// already wraps one of the known kinds.
func NewStageError(stage Stage, kind error, err error) *StageError {
	if kind == nil {
		kind = KindOf(err)
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Kind)
	case e.Kind == nil || errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("stage %s: %v: %v", e.Stage, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *StageError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

var kinds = []error{
	ErrCancelled, ErrDownload, ErrTranscode, ErrEmptyTranscript, ErrSynthesis,
	ErrNoNarrationProduced, ErrCompose, ErrRemux, ErrStorage, ErrConfiguration, ErrNotFound,
}

// KindOf returns the first known error kind wrapped by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
