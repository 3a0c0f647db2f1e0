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

package services_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/services"
	"github.com/jaycherian/go-media-narrator/internal/core/store"
	"github.com/jaycherian/go-media-narrator/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func narratedVideo(t *testing.T, artifacts *store.ArtifactStore) string {
	t.Helper()
	dir := t.TempDir()
	original := filepath.Join(dir, "lesson.mp4")
	require.NoError(t, os.WriteFile(original, testutil.MP4Header, 0o644))
	id, err := artifacts.RegisterOriginal(original, "", "Lesson", model.VoiceGiaHuy)
	require.NoError(t, err)

	narrated := filepath.Join(dir, "trans_lesson.mp4")
	require.NoError(t, os.WriteFile(narrated, append(testutil.MP4Header, 1, 2, 3), 0o644))
	require.True(t, artifacts.RegisterNarrated(id, narrated, model.VoiceGiaHuy))
	require.NoError(t, artifacts.SaveSegments(id, model.GetExampleSegments()))
	return id
}

func newService(t *testing.T, mirror *testutil.FakeMirror, generator *testutil.FakeGenerator) (*services.VideoService, *store.ArtifactStore) {
	t.Helper()
	config := testutil.GetConfig(t)
	artifacts, err := store.Open(config.Store.BaseDir, store.LoadExisting)
	require.NoError(t, err)

	var svc *services.VideoService
	switch {
	case mirror != nil && generator != nil:
		svc, err = services.NewVideoService(config, artifacts, mirror, generator)
	case mirror != nil:
		svc, err = services.NewVideoService(config, artifacts, mirror, nil)
	case generator != nil:
		svc, err = services.NewVideoService(config, artifacts, nil, generator)
	default:
		svc, err = services.NewVideoService(config, artifacts, nil, nil)
	}
	require.NoError(t, err)
	return svc, artifacts
}

func TestLatestAndStats(t *testing.T) {
	svc, artifacts := newService(t, nil, nil)
	_, err := svc.Latest()
	assert.ErrorIs(t, err, model.ErrNotFound)

	id := narratedVideo(t, artifacts)
	rec, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Completed)

	completed, err := svc.ListByStatus(model.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
	_, err = svc.ListByStatus("archived")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestOpenAndDelete(t *testing.T) {
	svc, artifacts := newService(t, nil, nil)
	id := narratedVideo(t, artifacts)

	f, rec, err := svc.Open(id, model.ArtifactNarrated)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Len(t, data, len(testutil.MP4Header)+3)
	assert.Equal(t, model.StatusCompleted, rec.Status)

	require.NoError(t, svc.Delete(id))
	assert.ErrorIs(t, svc.Delete(id), model.ErrNotFound)
	_, err = svc.Get(id)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSignedURL(t *testing.T) {
	svc, artifacts := newService(t, nil, nil)
	id := narratedVideo(t, artifacts)
	_, err := svc.SignedURL(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	svc, artifacts = newService(t, &testutil.FakeMirror{}, nil)
	id = narratedVideo(t, artifacts)
	_, err = svc.SignedURL(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrNotFound, "not mirrored yet")

	require.NoError(t, artifacts.SetMirror(id, "gs://narrations/"+id+".mp4"))
	url, err := svc.SignedURL(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, url, "narrations/"+id+".mp4")
	assert.Contains(t, url, "expires=900")
}

func TestSummarize(t *testing.T) {
	gen := &testutil.FakeGenerator{Replies: []string{`{"title":"Cà phê phin","summary":"Hướng dẫn pha cà phê.","keywords":["cà phê"],"language":"vi"}`}}
	svc, artifacts := newService(t, nil, gen)
	id := narratedVideo(t, artifacts)

	doc, err := svc.Summarize(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.VideoID)
	assert.Equal(t, "Cà phê phin", doc.Title)
	require.Len(t, gen.Prompts, 1)
	assert.Contains(t, gen.Prompts[0], "cà phê phin")

	_, err = svc.Summarize(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSummarizeWithoutModel(t *testing.T) {
	svc, artifacts := newService(t, nil, nil)
	id := narratedVideo(t, artifacts)
	_, err := svc.Summarize(context.Background(), id)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
