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
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"google.golang.org/api/option"
	translatev2 "google.golang.org/api/translate/v2"
)

// Google translates with the Cloud Translation v2 API.
type Google struct {
	service *translatev2.Service
	source  string
	target  string
}

// NewGoogle authenticates with apiKey when set and with the application
// default credentials otherwise. Extra options are appended, tests use them to
// point the client at a local server.
func NewGoogle(ctx context.Context, source, target, apiKey string, opts ...option.ClientOption) (*Google, error) {
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := translatev2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("translation client: %w", err)
	}
	return &Google{service: svc, source: source, target: target}, nil
}

func (g *Google) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	call := g.service.Translations.List([]string{text}, g.target).Format("text").Context(ctx)
	if g.source != "" {
		call = call.Source(g.source)
	}
	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	if len(resp.Translations) == 0 || strings.TrimSpace(resp.Translations[0].TranslatedText) == "" {
		return "", errors.New("google translate returned no translation")
	}
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}
