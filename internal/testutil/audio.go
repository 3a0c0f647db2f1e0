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
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteTone writes a mono 16-bit sine WAV. An amplitude of zero writes silence.
func WriteTone(t testing.TB, path string, sampleRate int, seconds float64, amplitude int) string {
	t.Helper()
	if err := WriteToneFile(path, sampleRate, seconds, amplitude); err != nil {
		t.Fatalf("write tone %s: %v", path, err)
	}
	return path
}

// WriteToneFile is WriteTone for callers without a testing.TB, such as fakes.
func WriteToneFile(path string, sampleRate int, seconds float64, amplitude int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n := int(math.Round(seconds * float64(sampleRate)))
	data := make([]int, n)
	for i := range data {
		data[i] = int(float64(amplitude) * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return err
	}
	return enc.Close()
}

// WriteConstant writes a mono 16-bit WAV holding one repeated sample value.
func WriteConstant(t testing.TB, path string, sampleRate int, seconds float64, value int) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	data := make([]int, int(math.Round(seconds*float64(sampleRate))))
	for i := range data {
		data[i] = value
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate}, Data: data, SourceBitDepth: 16}); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
	return path
}

// WAVInfo is the decoded content of a WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []int
}

// Seconds is the duration of the decoded samples.
func (w WAVInfo) Seconds() float64 {
	return float64(len(w.Samples)) / float64(w.SampleRate*w.Channels)
}

// Peak returns the largest absolute sample between two offsets in seconds.
func (w WAVInfo) Peak(from, to float64) int {
	start := int(from * float64(w.SampleRate))
	end := int(to * float64(w.SampleRate))
	if end > len(w.Samples) {
		end = len(w.Samples)
	}
	peak := 0
	for i := start; i < end; i++ {
		v := w.Samples[i]
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// ReadWAV decodes a WAV file or fails the test.
func ReadWAV(t testing.TB, path string) WAVInfo {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("%s is not a valid WAV file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return WAVInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Samples:    buf.Data,
	}
}
