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

package transcribe

import (
	"context"
	"fmt"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/sashabaranov/go-openai"
)

// OpenAITranscriber uses the hosted transcription endpoint with verbose JSON
// output, which carries segment timestamps. The model size preset does not
// apply to the hosted model and is ignored.
type OpenAITranscriber struct {
	Client   *openai.Client
	Model    string
	Language string
}

func (o *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string, _ string) ([]model.TranscriptSegment, error) {
	name := o.Model
	if name == "" {
		name = openai.Whisper1
	}
	resp, err := o.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    name,
		FilePath: audioPath,
		Language: o.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	segments := make([]model.TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, model.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return model.NormalizeTranscript(segments), nil
}
