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

// Package testutil provides helpers and fake collaborators for the test
// suite: a test configuration rooted in a temporary directory, sample trigger
// payloads, WAV fixtures and in-memory replacements for every external tool
// and service the pipeline talks to.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
)

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestTriggerMessageText returns a Pub/Sub narration trigger payload.
func GetTestTriggerMessageText() string {
	return `{
  "url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
  "voice": "ngoclam",
  "title": "Cách pha cà phê phin"
}`
}

// GetTestMalformedMessageText returns a trigger payload that can never be
// processed, whatever the number of redeliveries.
func GetTestMalformedMessageText() string {
	return `{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "voice": "robot"}`
}

// SetupOS points the configuration loader at a config directory and the
// "test" runtime, so `<dir>/.env.toml` is overlaid by `<dir>/.env.test.toml`.
func SetupOS(t testing.TB, configDir string) {
	t.Helper()
	t.Setenv(cloud.EnvConfigFilePrefix, configDir)
	t.Setenv(cloud.EnvConfigRuntime, cloud.DefaultRuntime)
}

// GetConfig returns a configuration whose directories all live under a fresh
// temporary directory. Nothing is read from disk and no cloud service is
// enabled.
func GetConfig(t testing.TB) *cloud.Config {
	t.Helper()
	root := t.TempDir()
	config := cloud.NewConfig()
	config.Store.BaseDir = filepath.Join(root, "video_data")
	config.Store.SegmentMetadataFile = filepath.Join(root, "voice_segments_metadata.json")
	config.Pipeline.WorkDir = filepath.Join(root, "workspaces")
	config.RunLog.Path = filepath.Join(root, "runs.db")
	config.Logging.File = ""
	config.Timeouts.BackoffMillis = 1
	config.TTS.SampleRate = 8000
	return config
}

// WriteConfigFile writes a TOML file into dir and returns its path.
func WriteConfigFile(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
