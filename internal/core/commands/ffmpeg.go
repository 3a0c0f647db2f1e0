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
// Responsibility (COR) pattern's Command interface. This file wraps the two
// ffmpeg stages of a run: extracting the speech track from the source video
// and remuxing the composed narration track back under the picture.
package commands

import (
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// ExtractAudio writes a 16 kHz mono PCM WAV of the stored video into the
// workspace.
type ExtractAudio struct {
	cor.BaseCommand
	transcoder Transcoder
}

func NewExtractAudio(name string, transcoder Transcoder) *ExtractAudio {
	out := &ExtractAudio{BaseCommand: *cor.NewBaseCommand(name), transcoder: transcoder}
	out.InputParamName = ParamVideoPath
	return out
}

func (c *ExtractAudio) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(ParamWorkspace) != nil
}

func (c *ExtractAudio) Execute(context cor.Context) {
	video := context.Get(ParamVideoPath).(string)
	workspace := context.Get(ParamWorkspace).(string)

	audio, err := c.transcoder.ExtractAudio(context.GetContext(), video, workspace)
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.AddTempFile(audio)
	context.Add(ParamAudioPath, audio)
	context.Add(c.GetOutputParam(), audio)
}

// Remux puts the narration track under the original picture.
type Remux struct {
	cor.BaseCommand
	remuxer Remuxer
}

func NewRemux(name string, remuxer Remuxer) *Remux {
	out := &Remux{BaseCommand: *cor.NewBaseCommand(name), remuxer: remuxer}
	out.InputParamName = ParamTrackPath
	return out
}

func (c *Remux) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) &&
		context.Get(ParamVideoPath) != nil &&
		context.Get(ParamWorkspace) != nil
}

func (c *Remux) Execute(context cor.Context) {
	video := context.Get(ParamVideoPath).(string)
	track := context.Get(ParamTrackPath).(string)
	workspace := context.Get(ParamWorkspace).(string)

	output, err := c.remuxer.Remux(context.GetContext(), video, track, workspace)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if output == "" {
		c.Fail(context, model.ErrRemux)
		return
	}
	c.Succeed(context)
	context.Add(ParamOutputPath, output)
	context.Add(c.GetOutputParam(), output)
}
