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
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of one pipeline run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunSucceeded   RunStatus = "succeeded"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted" // The process died while the run was in flight.
)

// NarrationRequest is the input of a pipeline run. Exactly one of SourceURL
// and LocalPath must be set.
type NarrationRequest struct {
	SourceURL string `json:"url,omitempty"`
	LocalPath string `json:"file,omitempty"`
	Title     string `json:"title,omitempty"`
	Voice     string `json:"voice,omitempty"`
	ModelSize string `json:"model_size,omitempty"`
}

// Source returns the URL or local path the run starts from.
func (r *NarrationRequest) Source() string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return r.LocalPath
}

// Validate checks the request before any stage runs and returns the parsed voice.
func (r *NarrationRequest) Validate() (Voice, error) {
	if r == nil {
		return "", fmt.Errorf("%w: missing narration request", ErrConfiguration)
	}
	switch {
	case r.SourceURL == "" && r.LocalPath == "":
		return "", fmt.Errorf("%w: a source url or local file is required", ErrConfiguration)
	case r.SourceURL != "" && r.LocalPath != "":
		return "", fmt.Errorf("%w: source url and local file are mutually exclusive", ErrConfiguration)
	}
	return ParseVoice(r.Voice)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.NewString()
}

// RunReport is what a caller learns about a run: where it stopped, why, and
// how much of the narration survived.
type RunReport struct {
	RunID            string            `json:"run_id"`
	VideoID          string            `json:"video_id,omitempty"`
	Source           string            `json:"source"`
	Voice            Voice             `json:"voice"`
	Status           RunStatus         `json:"status"`
	Stage            Stage             `json:"stage"`
	FailedStage      Stage             `json:"failed_stage,omitempty"`
	Error            string            `json:"error,omitempty"`
	SegmentsTotal    int               `json:"segments_total"`
	SegmentsNarrated int               `json:"segments_narrated"`
	SegmentsDegraded int               `json:"segments_degraded"`
	SkippedSegments  []int             `json:"skipped_segments,omitempty"`
	OutputPath       string            `json:"output_path,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	Transitions      []StageTransition `json:"transitions,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at,omitempty"`
}

// Summary renders the segment outcome, e.g. "38 of 41 segments narrated".
func (r *RunReport) Summary() string {
	return fmt.Sprintf("%d of %d segments narrated", r.SegmentsNarrated, r.SegmentsTotal)
}

// Skipped is the number of transcript segments missing from the narration.
func (r *RunReport) Skipped() int {
	return r.SegmentsTotal - r.SegmentsNarrated
}

func (r *RunReport) String() string {
	if r.Status == RunFailed {
		return fmt.Sprintf("run %s failed at %s: %s (%s)", r.RunID, r.FailedStage, r.Error, r.Summary())
	}
	return fmt.Sprintf("run %s %s: %s", r.RunID, r.Status, r.Summary())
}
