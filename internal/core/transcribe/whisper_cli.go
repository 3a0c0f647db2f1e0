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

package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/media"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/pkg/errors"
)

// WhisperCLI runs the openai-whisper command line tool and reads its JSON
// output file.
type WhisperCLI struct {
	Path     string
	Language string
	Runner   media.Runner
}

func NewWhisperCLI(path, language string) *WhisperCLI {
	if path == "" {
		path = "whisper"
	}
	return &WhisperCLI{Path: path, Language: language, Runner: media.ExecRunner{}}
}

type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string, modelSize string) ([]model.TranscriptSegment, error) {
	if !cloud.ValidModelSize(modelSize) {
		return nil, fmt.Errorf("%w: unknown model size %q", model.ErrConfiguration, modelSize)
	}
	outDir, err := os.MkdirTemp(filepath.Dir(audioPath), "whisper-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", modelSize,
		"--output_format", "json",
		"--output_dir", outDir,
		"--fp16", "False",
		"--verbose", "False",
	}
	if w.Language != "" {
		args = append(args, "--language", w.Language)
	}
	res, err := w.Runner.Run(ctx, w.Path, args...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s exited with status %d: %s", w.Path, res.ExitCode, lastLine(res.Stderr))
	}

	base := filepath.Base(audioPath)
	outFile := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".json")
	data, err := os.ReadFile(outFile)
	if err != nil {
		return nil, errors.Wrap(err, "whisper produced no transcript")
	}
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "unreadable whisper transcript")
	}

	segments := make([]model.TranscriptSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		segments = append(segments, model.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return model.NormalizeTranscript(segments), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
