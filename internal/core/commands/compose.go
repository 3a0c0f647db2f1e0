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

package commands

import (
	"log/slog"
	"path/filepath"

	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// TrackFile is the name of the composed narration track in the workspace.
const TrackFile = "narration_track.wav"

// DurationFunc returns the length of an audio file in seconds.
type DurationFunc func(path string) (float64, error)

// Compose lays the narrated clips onto a silent track as long as the source
// audio.
type Compose struct {
	cor.BaseCommand
	composer Composer
	measure  DurationFunc
}

func NewCompose(name string, composer Composer, measure DurationFunc) *Compose {
	out := &Compose{BaseCommand: *cor.NewBaseCommand(name), composer: composer, measure: measure}
	out.InputParamName = ParamSegments
	return out
}

func (c *Compose) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(ParamWorkspace) != nil
}

func (c *Compose) Execute(context cor.Context) {
	segments := context.Get(ParamSegments).([]model.NarrationSegment)
	workspace := context.Get(ParamWorkspace).(string)

	total := c.totalSeconds(context)
	track, err := c.composer.Compose(context.GetContext(), segments, total, filepath.Join(workspace, TrackFile))
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(ParamTrackPath, track)
	context.Add(c.GetOutputParam(), track)
}

// totalSeconds prefers the measured source audio length and falls back to
// the end of the last transcript segment.
func (c *Compose) totalSeconds(context cor.Context) float64 {
	if audio, ok := context.Get(ParamAudioPath).(string); ok && c.measure != nil {
		d, err := c.measure(audio)
		if err == nil && d > 0 {
			return d
		}
		slog.WarnContext(context.GetContext(), "source duration unavailable, using transcript end", "audio", audio, "error", err)
	}
	transcript, _ := context.Get(ParamTranscript).([]model.TranscriptSegment)
	return model.TranscriptEnd(transcript)
}
