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

// Package transcribe turns a speech track into timestamped segments. Two
// engines are provided: the openai-whisper command line tool running locally
// and the hosted OpenAI transcription API. Both return normalized segments:
// blank and zero length spans dropped, ordered by start time.
package transcribe

import (
	"context"
	"fmt"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/sashabaranov/go-openai"
)

// Transcriber produces the transcript of an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, modelSize string) ([]model.TranscriptSegment, error)
}

// New builds the engine named in config. openaiClient is only used by the
// openai engine.
func New(config *cloud.Config, openaiClient *openai.Client) (Transcriber, error) {
	switch config.Transcriber.Engine {
	case cloud.TranscriberWhisperCLI:
		return NewWhisperCLI(config.Tools.Whisper, config.Transcriber.Language), nil
	case cloud.TranscriberOpenAI:
		if openaiClient == nil {
			return nil, fmt.Errorf("%w: openai transcriber needs an OpenAI client", model.ErrConfiguration)
		}
		return &OpenAITranscriber{Client: openaiClient, Model: config.Transcriber.OpenAIModel, Language: config.Transcriber.Language}, nil
	}
	return nil, fmt.Errorf("%w: unknown transcriber engine %q", model.ErrConfiguration, config.Transcriber.Engine)
}

var _ Transcriber = (*WhisperCLI)(nil)
var _ Transcriber = (*OpenAITranscriber)(nil)
