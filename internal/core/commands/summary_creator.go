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
// Responsibility (COR) pattern's Command interface. This file defines the
// summary commands used by the video service.
//
// The summary chain works on a video that is already narrated:
//
//  1. TranscriptSummaryCreator renders the summary prompt with the translated
//     segments of the video and a few-shot example, then asks the generative
//     model for a JSON document;
//  2. SummaryJsonToStruct parses that document into a model.VideoSummary.
//
// The raw model output travels between the two through the CtxOut/CtxIn
// flip-flop of the chain.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// ParamSummarySegments is the context key of the []model.SegmentExport to
// summarize.
const ParamSummarySegments = "summary.segments"

// DefaultSummaryPrompt is used when prompt_templates.summary is empty.
const DefaultSummaryPrompt = `You summarize narrated videos.
The transcript below is in language "{{.LANGUAGE}}", one line per segment as "[start-end] text".
Reply with a single JSON object and nothing else, with the fields
"title", "summary", "keywords" and "language", written in the transcript language.

Example transcript:
{{.EXAMPLE_TRANSCRIPT}}
Example reply:
{{.EXAMPLE_JSON}}

Transcript:
{{.TRANSCRIPT}}`

// TranscriptSummaryCreator asks the generative model for a summary of a
// narrated transcript.
type TranscriptSummaryCreator struct {
	cor.BaseCommand
	generativeAIModel        cloud.ContentGenerator
	template                 *template.Template
	language                 string
	policy                   cloud.RetryPolicy
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
	geminiRetryCounter       metric.Int64Counter
}

func NewTranscriptSummaryCreator(
	name string,
	generativeAIModel cloud.ContentGenerator,
	template *template.Template,
	language string,
	policy cloud.RetryPolicy) *TranscriptSummaryCreator {

	out := &TranscriptSummaryCreator{
		BaseCommand:       *cor.NewBaseCommand(name),
		generativeAIModel: generativeAIModel,
		template:          template,
		language:          language,
		policy:            policy,
	}
	out.InputParamName = ParamSummarySegments

	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.retry", out.GetName()))
	return out
}

func formatTranscript(segments []model.SegmentExport) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", s.Start, s.End, s.Text)
	}
	return b.String()
}

// GenerateParams builds the template vocabulary for a transcript.
func (t *TranscriptSummaryCreator) GenerateParams(segments []model.SegmentExport) map[string]interface{} {
	params := make(map[string]interface{})
	params["LANGUAGE"] = t.language
	params["TRANSCRIPT"] = formatTranscript(segments)
	params["EXAMPLE_TRANSCRIPT"] = formatTranscript(model.GetExampleSegments())
	exampleSummary, _ := json.Marshal(model.GetExampleSummary())
	params["EXAMPLE_JSON"] = string(exampleSummary)
	return params
}

func (t *TranscriptSummaryCreator) Execute(context cor.Context) {
	segments := context.Get(ParamSummarySegments).([]model.SegmentExport)
	if len(segments) == 0 {
		t.Fail(context, fmt.Errorf("%w: no narrated segments to summarize", model.ErrNotFound))
		return
	}

	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, t.GenerateParams(segments)); err != nil {
		t.Fail(context, fmt.Errorf("failed to execute prompt template: %w", err))
		return
	}

	counters := cloud.TokenCounters{
		Input:  t.geminiInputTokenCounter,
		Output: t.geminiOutputTokenCounter,
		Retry:  t.geminiRetryCounter,
	}
	out, err := cloud.GenerateTextResponse(context.GetContext(), counters, t.policy, t.generativeAIModel, cloud.NewTextPart(buffer.String()))
	if err != nil {
		t.Fail(context, fmt.Errorf("gemini request failed: %w", err))
		return
	}

	t.Succeed(context)
	context.Add(t.GetOutputParam(), out)
}

// SummaryJsonToStruct parses the model reply into a model.VideoSummary.
type SummaryJsonToStruct struct {
	cor.BaseCommand
}

func NewSummaryJsonToStruct(name string, outputParamName string) *SummaryJsonToStruct {
	out := &SummaryJsonToStruct{BaseCommand: *cor.NewBaseCommand(name)}
	out.OutputParamName = outputParamName
	return out
}

// stripFences removes a markdown code fence the model may wrap JSON in.
func stripFences(in string) string {
	s := strings.TrimSpace(in)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (s *SummaryJsonToStruct) Execute(context cor.Context) {
	in := context.Get(s.GetInputParam()).(string)

	doc := &model.VideoSummary{}
	if err := json.Unmarshal([]byte(stripFences(in)), doc); err != nil {
		s.Fail(context, fmt.Errorf("failed to unmarshal summary JSON: %w", err))
		return
	}

	s.Succeed(context)
	context.Add(s.GetOutputParam(), doc)
	context.Add(cor.CtxOut, doc)
}
