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

package workflow

import (
	"context"
	"fmt"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/commands"
	"github.com/jaycherian/go-media-narrator/internal/core/media"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/timeline"
	"github.com/jaycherian/go-media-narrator/internal/core/transcribe"
	"github.com/jaycherian/go-media-narrator/internal/core/translate"
	"github.com/jaycherian/go-media-narrator/internal/core/tts"
)

// Collaborators are the external tools and services a run drives. Mirror and
// Inserter are optional publishing targets.
type Collaborators struct {
	Downloader  commands.Downloader
	Transcoder  commands.Transcoder
	Transcriber commands.Transcriber
	Translator  commands.Translator
	Synthesizer commands.Synthesizer
	Composer    commands.Composer
	Remuxer     commands.Remuxer
	Measure     commands.DurationFunc
	Mirror      commands.Mirror
	Inserter    commands.RowInserter
}

func (c Collaborators) validate() error {
	missing := ""
	switch {
	case c.Downloader == nil:
		missing = "downloader"
	case c.Transcoder == nil:
		missing = "transcoder"
	case c.Transcriber == nil:
		missing = "transcriber"
	case c.Translator == nil:
		missing = "translator"
	case c.Synthesizer == nil:
		missing = "synthesizer"
	case c.Composer == nil:
		missing = "composer"
	case c.Remuxer == nil:
		missing = "remuxer"
	}
	if missing != "" {
		return fmt.Errorf("%w: no %s configured", model.ErrConfiguration, missing)
	}
	return nil
}

// NewCollaborators builds the production collaborators described by config:
// yt-dlp and ffmpeg for media, the configured transcription and translation
// engines, FPT.AI for speech and the WAV composer.
func NewCollaborators(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (Collaborators, error) {
	ffmpeg := media.NewFFmpeg(config.Tools.FFmpeg, secondsOf(config.Timeouts.TranscodeSeconds))

	transcriber, err := transcribe.New(config, clients.OpenAIClient)
	if err != nil {
		return Collaborators{}, err
	}
	translator, err := translate.New(ctx, config, clients)
	if err != nil {
		return Collaborators{}, err
	}
	synthesizer, err := tts.NewFPTClient(config)
	if err != nil {
		return Collaborators{}, err
	}

	out := Collaborators{
		Downloader:  media.NewYtDlp(config.Tools.YtDlp, config.Timeouts.Policy(config.Timeouts.DownloadSeconds)),
		Transcoder:  ffmpeg,
		Transcriber: transcriber,
		Translator:  translator,
		Synthesizer: synthesizer,
		Composer:    timeline.NewComposer(config.TTS.SampleRate),
		Remuxer:     ffmpeg,
		Measure:     timeline.Duration,
	}
	if clients.Mirror != nil {
		out.Mirror = clients.Mirror
	}
	if clients.BigQueryClient != nil && config.BigQueryDataSource.SegmentTable != "" {
		out.Inserter = clients.BigQueryClient.
			Dataset(config.BigQueryDataSource.DatasetName).
			Table(config.BigQueryDataSource.SegmentTable).
			Inserter()
	}
	return out, nil
}
