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

// Package timeline builds the narration track: a silent base as long as the
// source audio with every synthesized clip mixed in at its segment start.
//
// Samples are summed in int32 and clamped to 16 bits once, after every clip
// is placed, so the result does not depend on the order clips are added in.
package timeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

const bitDepth = 16

// Composer mixes mono 16-bit WAV clips at SampleRate.
type Composer struct {
	SampleRate int
}

func NewComposer(sampleRate int) *Composer {
	return &Composer{SampleRate: sampleRate}
}

// Compose writes the track to outPath. The track is totalSeconds long, or
// longer when the last clip runs past the end.
func (c *Composer) Compose(ctx context.Context, segments []model.NarrationSegment, totalSeconds float64, outPath string) (string, error) {
	if c.SampleRate <= 0 {
		return "", fmt.Errorf("%w: invalid sample rate %d", model.ErrConfiguration, c.SampleRate)
	}
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	track := make([]int32, c.offset(totalSeconds))

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		samples, err := c.readClip(seg.AudioPath)
		if err != nil {
			return "", fmt.Errorf("%w: segment %d: %v", model.ErrCompose, seg.Index, err)
		}
		track = overlay(track, samples, c.offset(seg.Start))
	}

	if err := c.write(outPath, track); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("%w: %v", model.ErrCompose, err)
	}
	return outPath, nil
}

func (c *Composer) offset(seconds float64) int {
	return int(math.Round(seconds * float64(c.SampleRate)))
}

// overlay adds clip into track at offset, growing track when needed.
func overlay(track []int32, clip []int32, offset int) []int32 {
	if offset < 0 {
		offset = 0
	}
	if need := offset + len(clip); need > len(track) {
		grown := make([]int32, need)
		copy(grown, track)
		track = grown
	}
	for i, s := range clip {
		track[offset+i] += s
	}
	return track
}

// readClip decodes a clip into mono samples, averaging extra channels.
func (c *Composer) readClip(path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid WAV file", filepath.Base(path))
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if int(d.SampleRate) != c.SampleRate {
		return nil, fmt.Errorf("%s is %d Hz, the track is %d Hz", filepath.Base(path), d.SampleRate, c.SampleRate)
	}
	if d.BitDepth != bitDepth {
		return nil, fmt.Errorf("%s is %d-bit, expected %d-bit", filepath.Base(path), d.BitDepth, bitDepth)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(buf.Data) / channels
	out := make([]int32, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		out[i] = int32(sum / channels)
	}
	return out, nil
}

func clamp16(v int32) int {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int(v)
}

func (c *Composer) write(outPath string, track []int32) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]int, len(track))
	for i, s := range track {
		data[i] = clamp16(s)
	}
	enc := wav.NewEncoder(f, c.SampleRate, bitDepth, 1, 1)
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err != nil {
		return err
	}
	return enc.Close()
}

// Duration returns the length of a WAV file in seconds.
func Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid WAV file", filepath.Base(path))
	}
	dur, err := d.Duration()
	if err != nil {
		return 0, err
	}
	return dur.Seconds(), nil
}
