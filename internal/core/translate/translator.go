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

// Package translate renders transcript segments into the narration language.
// The gemini engine prompts a generative model through the rate limited
// cloud.QuotaAwareGenerativeAIModel; the google engine calls the Cloud
// Translation v2 API. Failures are returned as-is: the narrate stage decides
// to fall back to the source text.
package translate

import (
	"context"
	"fmt"
	"text/template"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// Translator translates one segment of text.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// DefaultPrompt is used when prompt_templates.translate is empty.
const DefaultPrompt = `Translate the following {{.SOURCE_LANGUAGE}} speech transcript segment into {{.TARGET_LANGUAGE}}.
Reply with the translation only: no quotes, no notes, no alternatives.
The result is read aloud by a narrator, so keep it natural and about as long as the original.

Example input:
{{.EXAMPLE_SOURCE}}
Example output:
{{.EXAMPLE_TARGET}}

Input:
{{.TEXT}}`

// New builds the engine named in config.
func New(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (Translator, error) {
	switch config.Translator.Engine {
	case cloud.TranslatorGemini:
		var generator cloud.ContentGenerator
		if clients != nil {
			if m, ok := clients.AgentModels[config.Translator.Model]; ok {
				generator = m
			}
		}
		if generator == nil {
			return nil, fmt.Errorf("%w: agent model %q is not available", model.ErrConfiguration, config.Translator.Model)
		}
		return NewGemini(generator, config.PromptTemplates.TranslatePrompt, config.Translator.Source, config.Translator.Target,
			config.Timeouts.Policy(config.Timeouts.TranslateSeconds))
	case cloud.TranslatorGoogle:
		return NewGoogle(ctx, config.Translator.Source, config.Translator.Target, config.Secrets.TranslateAPIKey)
	}
	return nil, fmt.Errorf("%w: unknown translator engine %q", model.ErrConfiguration, config.Translator.Engine)
}

// ParsePrompt parses a prompt template, falling back to fallback when in is empty.
func ParsePrompt(name, in, fallback string) (*template.Template, error) {
	if in == "" {
		in = fallback
	}
	t, err := template.New(name).Option("missingkey=error").Parse(in)
	if err != nil {
		return nil, fmt.Errorf("%w: prompt template %s: %v", model.ErrConfiguration, name, err)
	}
	return t, nil
}
