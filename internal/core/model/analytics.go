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
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
)

// SegmentRow is one narrated segment as streamed to BigQuery for analytics.
type SegmentRow struct {
	RunID          string    `json:"run_id" bigquery:"run_id"`
	VideoID        string    `json:"video_id" bigquery:"video_id"`
	Index          int       `json:"index" bigquery:"segment_index"`
	Start          float64   `json:"start" bigquery:"start_seconds"`
	End            float64   `json:"end" bigquery:"end_seconds"`
	SourceText     string    `json:"source_text" bigquery:"source_text"`
	TranslatedText string    `json:"translated_text" bigquery:"translated_text"`
	Voice          string    `json:"voice" bigquery:"voice"`
	Degraded       bool      `json:"degraded" bigquery:"degraded"`
	CreatedAt      time.Time `json:"created_at" bigquery:"created_at"`
}

// Save implements bigquery.ValueSaver so rows are deduplicated on retry by
// their run and segment index.
func (r *SegmentRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"run_id":          r.RunID,
		"video_id":        r.VideoID,
		"segment_index":   r.Index,
		"start_seconds":   r.Start,
		"end_seconds":     r.End,
		"source_text":     r.SourceText,
		"translated_text": r.TranslatedText,
		"voice":           r.Voice,
		"degraded":        r.Degraded,
		"created_at":      r.CreatedAt,
	}, r.RunID + "/" + strconv.Itoa(r.Index), nil
}

// SegmentRows flattens the narrated segments of a run.
func SegmentRows(runID, videoID string, voice Voice, segments []NarrationSegment) []*SegmentRow {
	now := time.Now().UTC()
	out := make([]*SegmentRow, 0, len(segments))
	for _, s := range segments {
		out = append(out, &SegmentRow{
			RunID:          runID,
			VideoID:        videoID,
			Index:          s.Index,
			Start:          s.Start,
			End:            s.End,
			SourceText:     s.SourceText,
			TranslatedText: s.TranslatedText,
			Voice:          string(voice),
			Degraded:       s.Degraded,
			CreatedAt:      now,
		})
	}
	return out
}

// RunEvent is a progress notification for one run, pushed to API subscribers.
type RunEvent struct {
	RunID   string    `json:"run_id"`
	Stage   Stage     `json:"stage"`
	Status  RunStatus `json:"status"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}
