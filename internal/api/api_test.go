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

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/go-media-narrator/internal/api"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/services"
	"github.com/jaycherian/go-media-narrator/internal/core/store"
	"github.com/jaycherian/go-media-narrator/internal/testutil"
)

type fakeNarrator struct {
	requests []*model.NarrationRequest
}

func (f *fakeNarrator) Start(_ context.Context, req *model.NarrationRequest) (string, <-chan *model.RunReport) {
	f.requests = append(f.requests, req)
	done := make(chan *model.RunReport, 1)
	done <- &model.RunReport{RunID: "run_fake", Status: model.RunSucceeded}
	close(done)
	return "run_fake", done
}

type fakeHistory struct{}

func (fakeHistory) Get(_ context.Context, runID string) (*model.RunReport, error) {
	if runID != "run_1" {
		return nil, model.ErrNotFound
	}
	return &model.RunReport{RunID: runID, Status: model.RunSucceeded}, nil
}

func (fakeHistory) List(_ context.Context, _ int) ([]*model.RunReport, error) {
	return []*model.RunReport{{RunID: "run_1", Status: model.RunSucceeded}}, nil
}

type harness struct {
	router    *gin.Engine
	server    *api.Server
	artifacts *store.ArtifactStore
	narrator  *fakeNarrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config := testutil.GetConfig(t)
	artifacts, err := store.Open(config.Store.BaseDir, store.LoadExisting)
	require.NoError(t, err)
	videos, err := services.NewVideoService(config, artifacts, nil, nil)
	require.NoError(t, err)

	narrator := &fakeNarrator{}
	server := &api.Server{Videos: videos, Narrator: narrator, Runs: fakeHistory{}, Events: api.NewHub(10)}
	return &harness{router: api.NewRouter(server, "narrator-test"), server: server, artifacts: artifacts, narrator: narrator}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) registerVideo(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "lesson.mp4")
	require.NoError(t, os.WriteFile(src, testutil.MP4Header, 0o644))
	id, err := h.artifacts.RegisterOriginal(src, "", "", model.VoiceGiaHuy)
	require.NoError(t, err)
	return id
}

func TestVoices(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/voices", "")
	require.Equal(t, http.StatusOK, w.Code)

	var voices []model.VoiceProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &voices))
	assert.Equal(t, model.Voices(), voices)
}

func TestVideoRoutes(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/videos/latest", "").Code)

	id := h.registerVideo(t)

	w := h.do(t, http.MethodGet, "/api/v1/videos", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.VideoRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/v1/videos?status=archived", "").Code)

	w = h.do(t, http.MethodGet, "/api/v1/videos/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = h.do(t, http.MethodGet, "/api/v1/videos/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = h.do(t, http.MethodGet, "/api/v1/videos/"+id+"/content?kind=original", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testutil.MP4Header, w.Body.Bytes())
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/videos/"+id+"/content?kind=narrated", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/v1/videos/"+id+"/content?kind=thumbnail", "").Code)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/videos/"+id+"/segments", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/v1/videos/"+id+"/url", "").Code, "no object storage")
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/v1/videos/"+id+"/summary", "").Code, "no summary model")

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/v1/videos/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/videos/"+id, "").Code)
}

func TestStartNarration(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/narrations", `{"url":"https://youtu.be/abc","voice":"ngoclam"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "run_fake")
	require.Len(t, h.narrator.requests, 1)
	assert.Equal(t, "https://youtu.be/abc", h.narrator.requests[0].SourceURL)

	w = h.do(t, http.MethodPost, "/api/v1/narrations", `{"url":"https://youtu.be/abc","voice":"robot"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(t, http.MethodPost, "/api/v1/narrations", `{"voice":"giahuy"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, h.narrator.requests, 1, "invalid requests never start a run")
}

func TestRunHistory(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run_1")

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/v1/runs/run_1", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/runs/run_2", "").Code)

	h.server.Runs = nil
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/runs", "").Code)
}

func TestRunEventsWebsocket(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	hub := h.server.Events
	hub.Publish(model.RunEvent{RunID: "run_ws", Stage: model.StageFetching, Status: model.RunRunning})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/runs/run_ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first model.RunEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, model.StageFetching, first.Stage, "past events are replayed")

	// the subscription exists once the replay was written
	hub.Publish(model.RunEvent{RunID: "run_ws", Stage: model.StageDone, Status: model.RunSucceeded})
	var last model.RunEvent
	require.NoError(t, conn.ReadJSON(&last))
	assert.Equal(t, model.StageDone, last.Stage)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
}

func TestHubForgetsOldRuns(t *testing.T) {
	hub := api.NewHub(2)
	for _, id := range []string{"a", "b", "c"} {
		hub.Publish(model.RunEvent{RunID: id, Status: model.RunRunning})
	}
	past, _, cancel := hub.Subscribe("a")
	defer cancel()
	assert.Empty(t, past)
	past, _, cancel2 := hub.Subscribe("c")
	defer cancel2()
	assert.Len(t, past, 1)
}
