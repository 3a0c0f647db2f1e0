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

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// SpeechSampleRate is the rate of the extracted track, what speech
// recognizers expect.
const SpeechSampleRate = 16000

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	Path    string
	Runner  Runner
	Timeout time.Duration // Per invocation, zero for none.
}

// NewFFmpeg returns an FFmpeg using the real process runner.
func NewFFmpeg(path string, timeout time.Duration) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Runner: ExecRunner{}, Timeout: timeout}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// exec runs ffmpeg producing out. A failed or interrupted run leaves no
// partial output behind.
func (f *FFmpeg) exec(ctx context.Context, kind error, out string, args ...string) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	if _, err := run(ctx, f.Runner, f.Path, args...); err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("%w: %w", kind, err)
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%w: ffmpeg produced no output at %s", kind, out)
	}
	return nil
}

// ExtractAudio writes the video's audio as 16 kHz mono 16-bit PCM WAV into
// outDir and returns its path.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath string, outDir string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("%w: %s", model.ErrNotFound, videoPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrTranscode, err)
	}
	out := filepath.Join(outDir, stem(videoPath)+".wav")
	err := f.exec(ctx, model.ErrTranscode, out,
		"-y", "-hide_banner", "-i", videoPath,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(SpeechSampleRate), "-acodec", "pcm_s16le",
		out)
	if err != nil {
		return "", err
	}
	return out, nil
}

// NormalizeClip converts a synthesized clip to mono 16-bit PCM WAV at
// sampleRate, the format the timeline composer overlays.
func (f *FFmpeg) NormalizeClip(ctx context.Context, clipPath string, outPath string, sampleRate int) error {
	return f.exec(ctx, model.ErrSynthesis, outPath,
		"-y", "-hide_banner", "-i", clipPath,
		"-ac", "1", "-ar", strconv.Itoa(sampleRate), "-acodec", "pcm_s16le",
		outPath)
}

// Remux pairs the video stream of videoPath with audioPath into
// outDir/trans_<name>.mp4. The picture is stream copied; the output ends with
// the shorter input.
func (f *FFmpeg) Remux(ctx context.Context, videoPath string, audioPath string, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrRemux, err)
	}
	out := filepath.Join(outDir, "trans_"+stem(videoPath)+".mp4")
	err := f.exec(ctx, model.ErrRemux, out,
		"-y", "-hide_banner", "-i", videoPath, "-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "aac", "-shortest",
		out)
	if err != nil {
		return "", err
	}
	return out, nil
}
