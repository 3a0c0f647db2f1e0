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
// This file holds the persistent side of the model: the VideoRecord that the
// ArtifactStore keeps in its metadata index, the lifecycle Status enum and the
// aggregate Stats view.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a stored video.
type Status string

const (
	StatusOriginalOnly Status = "original_only" // Registered, no narration stored yet.
	StatusProcessing   Status = "processing"    // A pipeline run is working on this video.
	StatusCompleted    Status = "completed"     // A narrated artifact exists on disk.
	StatusFailed       Status = "failed"        // The last narration attempt failed.
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOriginalOnly, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ArtifactKind selects one of the two files a record can own.
type ArtifactKind string

const (
	ArtifactOriginal ArtifactKind = "original"
	ArtifactNarrated ArtifactKind = "narrated"
)

// ParseArtifactKind maps the query form ("original", "narrated", "transformed")
// onto an ArtifactKind.
func ParseArtifactKind(in string) (ArtifactKind, error) {
	switch in {
	case "", string(ArtifactOriginal):
		return ArtifactOriginal, nil
	case string(ArtifactNarrated), "transformed":
		return ArtifactNarrated, nil
	}
	return "", fmt.Errorf("%w: unknown artifact kind %q", ErrConfiguration, in)
}

// VideoRecord is one entry of the artifact store's metadata index. The JSON
// field names form the on-disk schema of video_metadata.json.
type VideoRecord struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	SourceURL       string     `json:"sourceUrl"`
	OriginalPath    string     `json:"originalPath"`
	FileSize        int64      `json:"fileSize"`
	CreatedAt       time.Time  `json:"createdAt"`
	VoiceProfile    string     `json:"voiceProfile"`
	NarratedPath    *string    `json:"narratedPath"`
	Status          Status     `json:"status"`
	TransformedSize *int64     `json:"transformedSize,omitempty"`
	NarratedAt      *time.Time `json:"narratedAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	MirrorURI       string     `json:"mirrorUri,omitempty"`
}

// NewVideoID returns a fresh opaque record identifier.
func NewVideoID() string {
	return "video_" + uuid.NewString()
}

// Narrated returns the narrated artifact path, or "" when there is none.
func (v *VideoRecord) Narrated() string {
	if v.NarratedPath == nil {
		return ""
	}
	return *v.NarratedPath
}

// Clone returns a deep copy so callers never alias the store's internal state.
func (v *VideoRecord) Clone() *VideoRecord {
	if v == nil {
		return nil
	}
	out := *v
	if v.NarratedPath != nil {
		p := *v.NarratedPath
		out.NarratedPath = &p
	}
	if v.TransformedSize != nil {
		s := *v.TransformedSize
		out.TransformedSize = &s
	}
	if v.NarratedAt != nil {
		t := *v.NarratedAt
		out.NarratedAt = &t
	}
	return &out
}

// Consistent checks the record invariant: a narrated path exists exactly when
// the record is completed.
func (v *VideoRecord) Consistent() bool {
	return (v.Narrated() != "") == (v.Status == StatusCompleted)
}

// Stats is the aggregate view over the store, recomputed on every call.
type Stats struct {
	Total            int   `json:"total"`
	Completed        int   `json:"completed"`
	PendingOnly      int   `json:"pendingOnly"`
	Processing       int   `json:"processing"`
	Failed           int   `json:"failed"`
	TotalBytes       int64 `json:"totalBytes"`
	TransformedBytes int64 `json:"transformedBytes"`
}

// TotalMB and TransformedMB mirror the megabyte figures shown on dashboards.
func (s Stats) TotalMB() float64 { return float64(s.TotalBytes) / (1024 * 1024) }

func (s Stats) TransformedMB() float64 { return float64(s.TransformedBytes) / (1024 * 1024) }
