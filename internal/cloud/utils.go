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

// Package cloud holds the configuration model and the clients for the
// external services the narrator talks to. This file has the configuration
// loader and the helpers shared by the generative AI callers.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "NARRATOR_CONFIG_PREFIX" // Directory holding the TOML files.
	EnvConfigRuntime    = "NARRATOR_RUNTIME"       // Runtime overlay, e.g. local, test, prod.
	DefaultRuntime      = "test"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes <prefix>/.env.toml and then <prefix>/.env.<runtime>.toml
// into baseConfig. Missing files are skipped.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = DefaultRuntime
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			slog.Debug("configuration file not found, skipping", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("configuration file loaded", "file", name, "runtime", runtimeEnvironment)
	}
	return nil
}

// LoadSecrets reads dotenv files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadSecrets(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if !fileExists(f) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load secrets from %s: %w", f, err)
		}
	}
	return nil
}

// Load builds a validated Config from the defaults, the TOML files and the
// process environment.
func Load() (*Config, error) {
	config := NewConfig()
	if err := LoadSecrets(); err != nil {
		return nil, err
	}
	if err := LoadConfig(config); err != nil {
		return nil, err
	}
	config.ResolveSecrets()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ContentGenerator is the subset of QuotaAwareGenerativeAIModel the text
// helpers need.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
}

// TokenCounters are the metrics recorded around a generation call. Any of
// them may be nil.
type TokenCounters struct {
	Input  metric.Int64Counter
	Output metric.Int64Counter
	Retry  metric.Int64Counter
}

// GenerateTextResponse sends content to the model with bounded retries and
// concatenates the text parts of every candidate.
func GenerateTextResponse(
	ctx context.Context,
	counters TokenCounters,
	policy RetryPolicy,
	model ContentGenerator,
	content []*genai.Content) (string, error) {

	var resp *genai.GenerateContentResponse
	attempt := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		if attempt > 0 && counters.Retry != nil {
			counters.Retry.Add(ctx, 1)
		}
		attempt++
		var err error
		resp, err = model.GenerateContent(ctx, content)
		return err
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty response from model")
	}

	if resp.UsageMetadata != nil {
		if counters.Input != nil {
			counters.Input.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if counters.Output != nil {
			counters.Output.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}

	var value strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			value.WriteString(part.Text)
		}
	}
	out := strings.TrimSpace(value.String())
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out), nil
}

// NewTextPart wraps a prompt as user content.
func NewTextPart(in string) []*genai.Content {
	return genai.Text(in)
}
