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

package cloud_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigIsValid(t *testing.T) {
	config := cloud.NewConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, 1, config.Pipeline.Workers)
	assert.False(t, config.Pipeline.RecordFailures, "failed runs leave records original_only")
	assert.Equal(t, "giahuy", config.Pipeline.DefaultVoice)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]func(c *cloud.Config){
		"voice":       func(c *cloud.Config) { c.Pipeline.DefaultVoice = "banmai" },
		"workers":     func(c *cloud.Config) { c.Pipeline.Workers = 0 },
		"model size":  func(c *cloud.Config) { c.Transcriber.ModelSize = "huge" },
		"transcriber": func(c *cloud.Config) { c.Transcriber.Engine = "vosk" },
		"translator":  func(c *cloud.Config) { c.Translator.Engine = "deepl" },
		"gemini":      func(c *cloud.Config) { c.Translator.Engine = cloud.TranslatorGemini },
		"bucket":      func(c *cloud.Config) { c.Storage.Provider = cloud.StorageS3 },
		"exporter":    func(c *cloud.Config) { c.Telemetry.Exporter = "jaeger" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config := cloud.NewConfig()
			mutate(config)
			assert.ErrorIs(t, config.Validate(), model.ErrConfiguration)
		})
	}
}

func TestLoadConfigOverlaysRuntimeFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(`
[pipeline]
workers = 4
default_voice = "ngoclam"

[agent_models.translator]
model = "gemini-2.0-flash"
rate_limit = 5
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte(`
[pipeline]
workers = 2
`), 0o644))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, 2, config.Pipeline.Workers)
	assert.Equal(t, "ngoclam", config.Pipeline.DefaultVoice)
	assert.True(t, config.Pipeline.KeepWorkspace, "defaults survive keys the files leave out")
	assert.Equal(t, "gemini-2.0-flash", config.AgentModels["translator"].Model)
}

func TestLoadSecretsFromDotenv(t *testing.T) {
	f := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(f, []byte("FPT_API_KEY=abc123\n"), 0o644))
	t.Setenv("FPT_API_KEY", "")
	require.NoError(t, os.Unsetenv("FPT_API_KEY"))

	require.NoError(t, cloud.LoadSecrets(f, filepath.Join(t.TempDir(), "missing.env")))
	config := cloud.NewConfig()
	config.ResolveSecrets()
	assert.Equal(t, "abc123", config.Secrets.FPTAPIKey)
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()
	policy := cloud.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

	calls := 0
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	boom := errors.New("bad request")
	err = policy.Do(ctx, func(context.Context) error {
		calls++
		return cloud.Permanent(boom)
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = policy.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("still down")
	})
	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyAttemptTimeout(t *testing.T) {
	policy := cloud.RetryPolicy{Attempts: 2, Timeout: 10 * time.Millisecond}
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryPolicyHonoursContextAndWrappedPermanent(t *testing.T) {
	policy := cloud.RetryPolicy{Attempts: 5, Backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)

	boom := errors.New("quota exhausted for good")
	err = policy.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("synthesize: %w", cloud.Permanent(boom))
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.True(t, cloud.IsPermanent(cloud.Permanent(boom)))
	assert.False(t, cloud.IsPermanent(boom))
}

func TestParseTriggerMessage(t *testing.T) {
	req, err := cloud.ParseTriggerMessage([]byte(`{"url":"https://youtu.be/x","voice":"ngoclam"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/x", req.SourceURL)

	_, err = cloud.ParseTriggerMessage([]byte(`{"url":"https://youtu.be/x","voice":"robot"}`))
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = cloud.ParseTriggerMessage([]byte(`not json`))
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestParseGCSURI(t *testing.T) {
	obj, err := cloud.ParseGCSURI("gs://media/narrated/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, cloud.GCSObject{Bucket: "media", Name: "narrated/a.mp4"}, obj)
	assert.Equal(t, "gs://media/narrated/a.mp4", obj.URI())

	obj, err = cloud.ParseGCSURI("https://storage.mtls.cloud.google.com/media/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media", obj.Bucket)

	_, err = cloud.ParseGCSURI("s3://media/a.mp4")
	assert.Error(t, err)
}

func TestAcknowledge(t *testing.T) {
	ok := cor.NewBaseContext()
	assert.True(t, cloud.Acknowledge(ok))

	poison := cor.NewBaseContext()
	poison.AddError("trigger", model.ErrConfiguration)
	assert.True(t, cloud.Acknowledge(poison))

	transient := cor.NewBaseContext()
	transient.AddError("trigger", errors.New("store busy"))
	assert.False(t, cloud.Acknowledge(transient))
}
