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
)

// SegmentsToBigQuery streams the narrated segments of a run into an
// analytics table, one row per segment.
type SegmentsToBigQuery struct {
	cor.BaseCommand
	inserter RowInserter
}

func NewSegmentsToBigQuery(name string, inserter RowInserter) *SegmentsToBigQuery {
	out := &SegmentsToBigQuery{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter}
	out.InputParamName = ParamRecord
	return out
}

func (s *SegmentsToBigQuery) IsExecutable(context cor.Context) bool {
	return s.BaseCommand.IsExecutable(context) && context.Get(ParamSegments) != nil
}

func (s *SegmentsToBigQuery) Execute(context cor.Context) {
	rec := context.Get(ParamRecord).(*model.VideoRecord)
	segments := context.Get(ParamSegments).([]model.NarrationSegment)
	runID, _ := context.Get(ParamRunID).(string)
	voice, _ := context.Get(ParamVoice).(model.Voice)

	rows := model.SegmentRows(runID, rec.ID, voice, segments)
	if err := s.inserter.Put(context.GetContext(), rows); err != nil {
		s.Fail(context, fmt.Errorf("bigquery insert failed for video '%s': %w", rec.ID, err))
		return
	}

	s.Succeed(context)
	slog.InfoContext(context.GetContext(), "segments persisted to bigquery", "id", rec.ID, "rows", len(rows))
}
