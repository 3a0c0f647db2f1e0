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
// Responsibility (COR) pattern's Command interface for the narration
// pipeline. Every stage of a run (fetch, extract audio, transcribe, narrate,
// compose, remux, register) is one command; the publishing side effects that
// follow a successful run are commands too.
//
// Commands never talk to ffmpeg, yt-dlp, whisper or a web API directly: they
// go through the collaborator interfaces declared in this file, which the
// media, transcribe, translate, tts and timeline packages implement and tests
// replace with fakes.
package commands

import (
	"context"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// Downloader fetches a remote video into outDir and returns its path and title.
type Downloader interface {
	Fetch(ctx context.Context, url string, outDir string) (path string, title string, err error)
}

// Transcoder turns a video into speech-ready audio and synthesized clips into
// composer-ready WAV files.
type Transcoder interface {
	ExtractAudio(ctx context.Context, videoPath string, outDir string) (string, error)
	NormalizeClip(ctx context.Context, clipPath string, outPath string, sampleRate int) error
}

// Transcriber produces timestamped segments for an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, modelSize string) ([]model.TranscriptSegment, error)
}

// Translator translates one segment of text.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Synthesizer speaks text with a voice and writes the clip to outPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice model.Voice, outPath string) (string, error)
}

// Composer overlays narration clips onto a silent track.
type Composer interface {
	Compose(ctx context.Context, segments []model.NarrationSegment, totalSeconds float64, outPath string) (string, error)
}

// Remuxer replaces the audio of a video with a new track.
type Remuxer interface {
	Remux(ctx context.Context, videoPath string, audioPath string, outDir string) (string, error)
}

// Store is the part of store.ArtifactStore a run writes to.
type Store interface {
	RegisterOriginal(localPath, sourceURL, title string, voice model.Voice) (string, error)
	RegisterNarrated(id, localPath string, voice model.Voice) bool
	Get(id string) (*model.VideoRecord, error)
	MarkProcessing(id string) error
	MarkFailed(id string, cause error) error
	RevertToOriginal(id string) error
	SaveSegments(id string, exports []model.SegmentExport) error
	SetMirror(id, uri string) error
}

// Mirror copies an artifact to object storage and returns its URI.
type Mirror interface {
	Upload(ctx context.Context, localPath string, key string) (string, error)
	SignedURL(ctx context.Context, uri string, expires time.Duration) (string, error)
}

// RowInserter streams rows to an analytics table. *bigquery.Inserter
// satisfies it.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}
