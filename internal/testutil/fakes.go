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

package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"google.golang.org/genai"
)

// MP4Header is enough of an ISO BMFF header for content sniffing.
var MP4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2avc1mp41")

// Calls counts invocations of a fake. It is safe for concurrent use.
type Calls struct {
	mu sync.Mutex
	n  int
}

func (c *Calls) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// Count returns the number of recorded calls.
func (c *Calls) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// FakeDownloader writes a small MP4 named after Title into outDir.
type FakeDownloader struct {
	Calls
	Title string
	Err   error
}

func (f *FakeDownloader) Fetch(ctx context.Context, url string, outDir string) (string, string, error) {
	f.inc()
	if f.Err != nil {
		return "", "", f.Err
	}
	if err := ctx.Err(); err != nil {
		return "", "", fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}
	title := f.Title
	if title == "" {
		title = "downloaded"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", err
	}
	path := filepath.Join(outDir, title+".mp4")
	return path, title, os.WriteFile(path, MP4Header, 0o644)
}

// FakeTranscoder extracts a silent WAV of AudioSeconds and normalizes clips
// by copying them, since FakeSynthesizer already writes WAV.
type FakeTranscoder struct {
	Extracts   Calls
	Normalizes Calls

	AudioSeconds float64
	ExtractErr   error
	NormalizeErr error
	// OnExtract runs before the audio is written, e.g. to cancel a run.
	OnExtract func()
}

func (f *FakeTranscoder) ExtractAudio(ctx context.Context, videoPath string, outDir string) (string, error) {
	f.Extracts.inc()
	if f.OnExtract != nil {
		f.OnExtract()
	}
	if f.ExtractErr != nil {
		return "", f.ExtractErr
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrCancelled, err)
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	out := filepath.Join(outDir, base+".wav")
	return out, WriteToneFile(out, 16000, f.AudioSeconds, 0)
}

func (f *FakeTranscoder) NormalizeClip(ctx context.Context, clipPath string, outPath string, _ int) error {
	f.Normalizes.inc()
	if f.NormalizeErr != nil {
		return f.NormalizeErr
	}
	return copyFile(clipPath, outPath)
}

// FakeTranscriber returns Segments for every call.
type FakeTranscriber struct {
	Calls
	Segments []model.TranscriptSegment
	Err      error
}

func (f *FakeTranscriber) Transcribe(_ context.Context, _ string, _ string) ([]model.TranscriptSegment, error) {
	f.inc()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]model.TranscriptSegment, len(f.Segments))
	copy(out, f.Segments)
	return out, nil
}

// FakeTranslator prefixes the text with "vi: ". Texts listed in Fail return
// an error instead.
type FakeTranslator struct {
	Calls
	Fail map[string]bool
}

func (f *FakeTranslator) Translate(_ context.Context, text string) (string, error) {
	f.inc()
	if f.Fail[text] {
		return "", errors.New("translation backend unavailable")
	}
	return "vi: " + text, nil
}

// FakeSynthesizer writes a tone WAV of ClipSeconds at SampleRate. Texts
// containing any of the Fail substrings return ErrSynthesis.
type FakeSynthesizer struct {
	Calls
	SampleRate  int
	ClipSeconds float64
	Amplitude   int
	Fail        []string
	Delay       time.Duration

	mu     sync.Mutex
	active int
	// MaxActive is the highest number of concurrent calls observed.
	MaxActive int
}

func (f *FakeSynthesizer) Synthesize(ctx context.Context, text string, _ model.Voice, outPath string) (string, error) {
	f.inc()
	f.mu.Lock()
	f.active++
	if f.active > f.MaxActive {
		f.MaxActive = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
		}
	}
	for _, bad := range f.Fail {
		if strings.Contains(text, bad) {
			return "", fmt.Errorf("%w: voice service rejected %q", model.ErrSynthesis, text)
		}
	}
	amplitude := f.Amplitude
	if amplitude == 0 {
		amplitude = 8000
	}
	return outPath, WriteToneFile(outPath, f.SampleRate, f.ClipSeconds, amplitude)
}

// Peak reports the maximum concurrency seen so far.
func (f *FakeSynthesizer) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.MaxActive
}

// FakeRemuxer copies the video to trans_<name>.mp4.
type FakeRemuxer struct {
	Calls
	Err error
}

func (f *FakeRemuxer) Remux(_ context.Context, videoPath string, _ string, outDir string) (string, error) {
	f.inc()
	if f.Err != nil {
		return "", f.Err
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	out := filepath.Join(outDir, "trans_"+base+".mp4")
	return out, copyFile(videoPath, out)
}

// FakeComposer records its inputs and writes an empty track.
type FakeComposer struct {
	Calls
	Total    float64
	Segments []model.NarrationSegment
}

func (f *FakeComposer) Compose(_ context.Context, segments []model.NarrationSegment, totalSeconds float64, outPath string) (string, error) {
	f.inc()
	f.Total = totalSeconds
	f.Segments = segments
	return outPath, WriteToneFile(outPath, 8000, 0, 0)
}

// FakeMirror pretends to upload into gs://narrations.
type FakeMirror struct {
	Calls
	Keys []string
	Err  error
}

func (f *FakeMirror) Upload(_ context.Context, localPath string, key string) (string, error) {
	f.inc()
	if f.Err != nil {
		return "", f.Err
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	f.Keys = append(f.Keys, key)
	return "gs://narrations/" + key, nil
}

func (f *FakeMirror) SignedURL(_ context.Context, uri string, expires time.Duration) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s?expires=%d", strings.TrimPrefix(uri, "gs://"), int(expires.Seconds())), nil
}

// FakeInserter keeps the rows it was given.
type FakeInserter struct {
	Calls
	Rows []*model.SegmentRow
	Err  error
}

func (f *FakeInserter) Put(_ context.Context, src interface{}) error {
	f.inc()
	if f.Err != nil {
		return f.Err
	}
	rows, ok := src.([]*model.SegmentRow)
	if !ok {
		return fmt.Errorf("unexpected rows %T", src)
	}
	f.Rows = append(f.Rows, rows...)
	return nil
}

// FakeGenerator replies with Replies in order, repeating the last one.
type FakeGenerator struct {
	Calls
	Replies []string
	Err     error
	Prompts []string
}

func (f *FakeGenerator) GenerateContent(_ context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	f.inc()
	if len(content) > 0 && len(content[0].Parts) > 0 {
		f.Prompts = append(f.Prompts, content[0].Parts[0].Text)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	reply := ""
	if len(f.Replies) > 0 {
		i := f.Count() - 1
		if i >= len(f.Replies) {
			i = len(f.Replies) - 1
		}
		reply = f.Replies[i]
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: reply}}}}},
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
