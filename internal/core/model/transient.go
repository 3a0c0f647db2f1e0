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

// Package model defines the data structures shared by the narration pipeline.
// This file, `transient.go`, contains the segment types that only live for the
// duration of a pipeline run. They are produced by the transcribe and narrate
// stages and handed from command to command through the chain context; the only
// part that outlives the run is the SegmentExport list written to disk.
package model

import (
	"math"
	"sort"
	"strings"
)

// TranscriptSegment is one span of detected speech in the source audio.
// Start and End are seconds from the beginning of the track, half-open.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration is the length of the segment in seconds.
func (t TranscriptSegment) Duration() float64 { return t.End - t.Start }

// NarrationSegment is a transcript segment after translation and synthesis.
// AudioPath points at a WAV clip in the run workspace.
type NarrationSegment struct {
	Index          int     `json:"index"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	SourceText     string  `json:"source_text"`
	TranslatedText string  `json:"translated_text"`
	AudioPath      string  `json:"audio_path"`
	Degraded       bool    `json:"degraded,omitempty"` // Translation failed; TranslatedText holds the source text.
}

// SegmentExport is the public per-segment metadata format. Downstream tools
// read these files independently of the video, so the field names are fixed.
type SegmentExport struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	File  string  `json:"file"`
}

// NormalizeTranscript drops blank, zero-length and non-finite segments and
// orders the rest by start time (stable, so ties keep their engine order). The
// input slice is not modified.
func NormalizeTranscript(in []TranscriptSegment) []TranscriptSegment {
	out := make([]TranscriptSegment, 0, len(in))
	for _, seg := range in {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" || !finite(seg.Start) || !finite(seg.End) {
			continue
		}
		if seg.End <= seg.Start || seg.Start < 0 {
			continue
		}
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// TranscriptEnd returns the end of the last segment, or 0 for an empty transcript.
func TranscriptEnd(segments []TranscriptSegment) float64 {
	end := 0.0
	for _, s := range segments {
		if s.End > end {
			end = s.End
		}
	}
	return end
}

// ExportSegments converts narrated segments into the public export format.
func ExportSegments(segments []NarrationSegment, voice Voice) []SegmentExport {
	out := make([]SegmentExport, 0, len(segments))
	for _, s := range segments {
		out = append(out, SegmentExport{
			Start: s.Start,
			End:   s.End,
			Text:  s.TranslatedText,
			Voice: string(voice),
			File:  s.AudioPath,
		})
	}
	return out
}
