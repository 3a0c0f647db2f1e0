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

package tts_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fptServer struct {
	*httptest.Server
	posts       atomic.Int32
	polls       atomic.Int32
	postStatus  []int // status per POST, 200 once exhausted
	notReadyFor int32 // polls answered 404 before the clip is served
	lastVoice   atomic.Value
	lastBody    atomic.Value
}

func newFPTServer(t *testing.T) *fptServer {
	s := &fptServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/hmi/tts/v5", func(w http.ResponseWriter, r *http.Request) {
		n := int(s.posts.Add(1))
		if n <= len(s.postStatus) && s.postStatus[n-1] != http.StatusOK {
			w.WriteHeader(s.postStatus[n-1])
			_, _ = w.Write([]byte(`{"error":1,"message":"slow down"}`))
			return
		}
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		body, _ := io.ReadAll(r.Body)
		s.lastVoice.Store(r.Header.Get("voice"))
		s.lastBody.Store(string(body))
		_, _ = w.Write([]byte(`{"async":"` + s.URL + `/audio/clip.mp3","error":0,"message":"ok","request_id":"r1"}`))
	})
	mux.HandleFunc("/audio/clip.mp3", func(w http.ResponseWriter, r *http.Request) {
		if s.polls.Add(1) <= s.notReadyFor {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ID3-mp3-bytes"))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newClient(s *fptServer) *tts.FPTClient {
	return &tts.FPTClient{
		Endpoint:     s.URL + "/hmi/tts/v5",
		APIKey:       "secret",
		Speed:        "0",
		HTTP:         s.Client(),
		Limiter:      rate.NewLimiter(rate.Inf, 1),
		Policy:       cloud.RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
		PollAttempts: 5,
		PollInterval: time.Millisecond,
	}
}

func TestSynthesizePollsUntilReady(t *testing.T) {
	s := newFPTServer(t)
	s.notReadyFor = 2
	out := filepath.Join(t.TempDir(), "clips", "seg_0000.mp3")

	path, err := newClient(s).Synthesize(context.Background(), "Xin chào", model.VoiceNgocLam, out)
	require.NoError(t, err)
	assert.Equal(t, out, path)

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ID3-mp3-bytes", string(body))
	assert.Equal(t, int32(3), s.polls.Load())
	assert.Equal(t, "ngoclam", s.lastVoice.Load())
	assert.Equal(t, "Xin chào", s.lastBody.Load())
}

func TestSynthesizeRetriesThrottling(t *testing.T) {
	s := newFPTServer(t)
	s.postStatus = []int{http.StatusTooManyRequests, http.StatusBadGateway}

	_, err := newClient(s).Synthesize(context.Background(), "Xin chào", model.VoiceGiaHuy, filepath.Join(t.TempDir(), "a.mp3"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), s.posts.Load())
}

func TestSynthesizeClientErrorIsNotRetried(t *testing.T) {
	s := newFPTServer(t)
	s.postStatus = []int{http.StatusUnauthorized}
	out := filepath.Join(t.TempDir(), "a.mp3")

	_, err := newClient(s).Synthesize(context.Background(), "Xin chào", model.VoiceGiaHuy, out)
	assert.ErrorIs(t, err, model.ErrSynthesis)
	assert.Equal(t, int32(1), s.posts.Load())
	assert.NoFileExists(t, out)
}

func TestSynthesizeGivesUpPolling(t *testing.T) {
	s := newFPTServer(t)
	s.notReadyFor = 100

	_, err := newClient(s).Synthesize(context.Background(), "Xin chào", model.VoiceGiaHuy, filepath.Join(t.TempDir(), "a.mp3"))
	assert.ErrorIs(t, err, model.ErrSynthesis)
	assert.Equal(t, int32(5), s.polls.Load())
}

func TestSynthesizeRejectsUnknownVoice(t *testing.T) {
	s := newFPTServer(t)
	_, err := newClient(s).Synthesize(context.Background(), "Xin chào", model.Voice("banmai"), filepath.Join(t.TempDir(), "a.mp3"))
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Zero(t, s.posts.Load())
}

func TestNewFPTClientNeedsKey(t *testing.T) {
	_, err := tts.NewFPTClient(cloud.NewConfig())
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
