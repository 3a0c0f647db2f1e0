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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// YtDlp downloads single videos with yt-dlp.
type YtDlp struct {
	Path   string
	Runner Runner
	Policy cloud.RetryPolicy // Attempts and per-attempt timeout of both yt-dlp calls.
}

func NewYtDlp(path string, policy cloud.RetryPolicy) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{Path: path, Runner: ExecRunner{}, Policy: policy}
}

type videoInfo struct {
	Title string `json:"title"`
	ID    string `json:"id"`
}

// Fetch downloads url into outDir as <sanitized title>.mp4 and returns the
// path and the original title.
func (y *YtDlp) Fetch(ctx context.Context, url string, outDir string) (string, string, error) {
	if strings.TrimSpace(url) == "" {
		return "", "", fmt.Errorf("%w: empty url", model.ErrConfiguration)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("%w: %v", model.ErrDownload, err)
	}

	var info videoInfo
	err := y.Policy.Do(ctx, func(ctx context.Context) error {
		res, err := run(ctx, y.Runner, y.Path, "--dump-single-json", "--no-playlist", "--skip-download", url)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
			return cloud.Permanent(fmt.Errorf("unreadable video info: %w", err))
		}
		return nil
	})
	if err != nil {
		return "", "", y.fail(ctx, err)
	}

	name := info.Title
	if strings.TrimSpace(name) == "" {
		name = info.ID
	}
	out := filepath.Join(outDir, SanitizeFilename(name)+".mp4")

	err = y.Policy.Do(ctx, func(ctx context.Context) error {
		_, err := run(ctx, y.Runner, y.Path,
			"-f", "best[ext=mp4]/best", "--no-playlist", "--no-part", "-o", out, url)
		if err != nil {
			_ = os.Remove(out)
		}
		return err
	})
	if err != nil {
		return "", "", y.fail(ctx, err)
	}

	if err := SniffVideo(out); err != nil {
		_ = os.Remove(out)
		return "", "", err
	}
	return out, info.Title, nil
}

func (y *YtDlp) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
	}
	return fmt.Errorf("%w: %v", model.ErrDownload, err)
}

// SniffVideo checks the file header of a downloaded file.
func SniffVideo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrDownload, err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, _ := f.Read(head)
	if !filetype.IsVideo(head[:n]) {
		kind, _ := filetype.Match(head[:n])
		return fmt.Errorf("%w: %s is not a video (detected %q)", model.ErrDownload, filepath.Base(path), kind.MIME.Value)
	}
	return nil
}
