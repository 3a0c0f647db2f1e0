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
	goctx "context"
	"fmt"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Transcribe runs the speech recognizer over the extracted audio and keeps
// the normalized segments. A transcript without speech ends the run.
type Transcribe struct {
	cor.BaseCommand
	transcriber      Transcriber
	defaultModelSize string
	timeout          time.Duration
}

func NewTranscribe(name string, transcriber Transcriber, defaultModelSize string, timeout time.Duration) *Transcribe {
	out := &Transcribe{
		BaseCommand:      *cor.NewBaseCommand(name),
		transcriber:      transcriber,
		defaultModelSize: defaultModelSize,
		timeout:          timeout,
	}
	out.InputParamName = ParamAudioPath
	return out
}

func (c *Transcribe) Execute(context cor.Context) {
	audio := context.Get(ParamAudioPath).(string)
	modelSize := c.defaultModelSize
	if req, ok := context.Get(ParamRequest).(*model.NarrationRequest); ok && req.ModelSize != "" {
		modelSize = req.ModelSize
	}

	ctx := context.GetContext()
	if c.timeout > 0 {
		var cancel goctx.CancelFunc
		ctx, cancel = goctx.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.transcriber.Transcribe(ctx, audio, modelSize)
	if err != nil {
		if context.GetContext().Err() != nil {
			err = fmt.Errorf("%w: %w", model.ErrCancelled, err)
		}
		c.Fail(context, err)
		return
	}

	segments := model.NormalizeTranscript(raw)
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.String("model_size", modelSize),
		attribute.Int("segments", len(segments)),
		attribute.Int("segments_dropped", len(raw)-len(segments)),
	)
	if len(segments) == 0 {
		c.Fail(context, model.ErrEmptyTranscript)
		return
	}

	c.Succeed(context)
	context.Add(ParamTranscript, segments)
	context.Add(c.GetOutputParam(), segments)
}
