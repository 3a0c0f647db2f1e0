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
	"fmt"
	"log/slog"

	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/store"
)

// RegisterOriginal copies the source video into the artifact store and marks
// the new record as processing.
type RegisterOriginal struct {
	cor.BaseCommand
	store Store
}

func NewRegisterOriginal(name string, store Store) *RegisterOriginal {
	out := &RegisterOriginal{BaseCommand: *cor.NewBaseCommand(name), store: store}
	out.InputParamName = ParamSourcePath
	return out
}

func (c *RegisterOriginal) Execute(context cor.Context) {
	path := context.Get(ParamSourcePath).(string)
	req := context.Get(ParamRequest).(*model.NarrationRequest)
	voice := context.Get(ParamVoice).(model.Voice)
	title, _ := context.Get(ParamTitle).(string)

	id, err := c.store.RegisterOriginal(path, req.SourceURL, title, voice)
	if err != nil {
		c.Fail(context, err)
		return
	}
	// The id is published before anything else can fail so the workflow can
	// mark the record failed.
	context.Add(ParamVideoID, id)

	if err := c.store.MarkProcessing(id); err != nil {
		c.Fail(context, err)
		return
	}
	rec, err := c.store.Get(id)
	if err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(ParamVideoPath, rec.OriginalPath)
	context.Add(c.GetOutputParam(), rec.OriginalPath)
}

// RegisterNarrated stores the remuxed video and the segment metadata. It is
// the only command that moves a record to completed.
type RegisterNarrated struct {
	cor.BaseCommand
	store      Store
	exportPath string // Global segment metadata file, replaced on every run. Optional.
}

func NewRegisterNarrated(name string, store Store, exportPath string) *RegisterNarrated {
	out := &RegisterNarrated{BaseCommand: *cor.NewBaseCommand(name), store: store, exportPath: exportPath}
	out.InputParamName = ParamOutputPath
	return out
}

func (c *RegisterNarrated) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) &&
		context.Get(ParamVideoID) != nil &&
		context.Get(ParamSegments) != nil
}

func (c *RegisterNarrated) Execute(context cor.Context) {
	output := context.Get(ParamOutputPath).(string)
	id := context.Get(ParamVideoID).(string)
	voice := context.Get(ParamVoice).(model.Voice)
	segments := context.Get(ParamSegments).([]model.NarrationSegment)

	exports := model.ExportSegments(segments, voice)
	if err := c.store.SaveSegments(id, exports); err != nil {
		c.Fail(context, err)
		return
	}
	if c.exportPath != "" {
		if err := store.WriteSegments(c.exportPath, exports); err != nil {
			c.Fail(context, err)
			return
		}
	}

	if !c.store.RegisterNarrated(id, output, voice) {
		c.Fail(context, fmt.Errorf("%w: narrated output %s was not stored", model.ErrStorage, output))
		return
	}
	rec, err := c.store.Get(id)
	if err != nil {
		c.Fail(context, err)
		return
	}

	slog.InfoContext(context.GetContext(), "narrated video registered", "id", id, "path", rec.Narrated(), "segments", len(segments))
	c.Succeed(context)
	context.Add(ParamRecord, rec)
	context.Add(c.GetOutputParam(), rec)
}
