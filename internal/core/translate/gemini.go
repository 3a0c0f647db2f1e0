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

package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"go.opentelemetry.io/otel"
)

var languageNames = map[string]string{
	"en": "English",
	"vi": "Vietnamese",
	"fr": "French",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
}

func languageName(code string) string {
	if n, ok := languageNames[strings.ToLower(code)]; ok {
		return n
	}
	return code
}

// Gemini translates with a generative model.
type Gemini struct {
	model    cloud.ContentGenerator
	template *template.Template
	source   string
	target   string
	policy   cloud.RetryPolicy
	counters cloud.TokenCounters
}

func NewGemini(generator cloud.ContentGenerator, prompt, source, target string, policy cloud.RetryPolicy) (*Gemini, error) {
	t, err := ParsePrompt("translate", prompt, DefaultPrompt)
	if err != nil {
		return nil, err
	}
	meter := otel.Meter(cor.MeterName)
	counters := cloud.TokenCounters{}
	counters.Input, _ = meter.Int64Counter("translate.gemini.token.input")
	counters.Output, _ = meter.Int64Counter("translate.gemini.token.output")
	counters.Retry, _ = meter.Int64Counter("translate.gemini.retry")
	return &Gemini{
		model:    generator,
		template: t,
		source:   source,
		target:   target,
		policy:   policy,
		counters: counters,
	}, nil
}

// GenerateParams is the data the prompt template is rendered with.
func (g *Gemini) GenerateParams(text string) map[string]interface{} {
	example := model.GetExampleTranslation()
	return map[string]interface{}{
		"SOURCE_LANGUAGE": languageName(g.source),
		"TARGET_LANGUAGE": languageName(g.target),
		"EXAMPLE_SOURCE":  example.Source,
		"EXAMPLE_TARGET":  example.Target,
		"TEXT":            text,
	}
}

func (g *Gemini) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	var buffer bytes.Buffer
	if err := g.template.Execute(&buffer, g.GenerateParams(text)); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	out, err := cloud.GenerateTextResponse(ctx, g.counters, g.policy, g.model, cloud.NewTextPart(buffer.String()))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	out = strings.Trim(out, "\"“” \n")
	if out == "" {
		return "", errors.New("gemini returned an empty translation")
	}
	return out, nil
}
