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

package store_test

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func openStore(t *testing.T, base string, mode store.OpenMode, opts ...store.Option) *store.ArtifactStore {
	t.Helper()
	s, err := store.Open(base, mode, opts...)
	require.NoError(t, err)
	return s
}

func TestRegisterOriginalCopiesSource(t *testing.T) {
	src := t.TempDir()
	s := openStore(t, filepath.Join(t.TempDir(), "video_data"), store.LoadExisting)

	in := writeFile(t, src, "My Clip.mp4", "video-bytes")
	id, err := s.RegisterOriginal(in, "https://youtu.be/abc", "", model.VoiceNgocLam)
	require.NoError(t, err)

	rec, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOriginalOnly, rec.Status)
	assert.Equal(t, "My Clip", rec.Title)
	assert.Equal(t, int64(len("video-bytes")), rec.FileSize)
	assert.Equal(t, "ngoclam", rec.VoiceProfile)
	assert.Contains(t, filepath.Base(rec.OriginalPath), id+"_")
	assert.FileExists(t, rec.OriginalPath)
	assert.FileExists(t, in, "source is copied, not moved")
	assert.True(t, rec.Consistent())
}

func TestRegisterOriginalMissingPath(t *testing.T) {
	s := openStore(t, t.TempDir(), store.LoadExisting)

	_, err := s.RegisterOriginal(filepath.Join(t.TempDir(), "nope.mp4"), "", "", model.DefaultVoice)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, s.ListAll())
}

func TestRegisterNarratedIsIdempotent(t *testing.T) {
	src := t.TempDir()
	s := openStore(t, t.TempDir(), store.LoadExisting)
	id, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "orig"), "", "A", model.VoiceGiaHuy)
	require.NoError(t, err)

	out := writeFile(t, src, "trans_a.mp4", "narrated")
	require.True(t, s.RegisterNarrated(id, out, model.VoiceGiaHuy))
	first, err := s.Get(id)
	require.NoError(t, err)

	require.True(t, s.RegisterNarrated(id, out, model.VoiceGiaHuy))
	second, err := s.Get(id)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, second.Status)
	assert.Equal(t, first.Narrated(), second.Narrated())
	assert.Equal(t, int64(len("narrated")), *second.TransformedSize)
	assert.NotNil(t, second.NarratedAt)
	assert.Contains(t, filepath.Base(second.Narrated()), id+"_transformed_giahuy_")
	assert.True(t, second.Consistent())
	assert.Len(t, s.ListAll(), 1)
}

func TestRegisterNarratedNamesFileOnce(t *testing.T) {
	src := t.TempDir()
	s := openStore(t, t.TempDir(), store.LoadExisting)
	id, err := s.RegisterOriginal(writeFile(t, src, "lesson.mp4", "orig"), "", "", model.VoiceNgocLam)
	require.NoError(t, err)
	rec, err := s.Get(id)
	require.NoError(t, err)

	// remuxed output named after the stored original
	remuxed := writeFile(t, src, "trans_"+filepath.Base(rec.OriginalPath), "narrated")
	require.True(t, s.RegisterNarrated(id, remuxed, model.VoiceNgocLam))

	rec, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id+"_transformed_ngoclam_trans_lesson.mp4", filepath.Base(rec.Narrated()))
	assert.Equal(t, 1, strings.Count(rec.Narrated(), id))
}

func TestRegisterNarratedRejectsBadInput(t *testing.T) {
	src := t.TempDir()
	s := openStore(t, t.TempDir(), store.LoadExisting)
	id, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "orig"), "", "A", model.VoiceGiaHuy)
	require.NoError(t, err)

	assert.False(t, s.RegisterNarrated("video_unknown", writeFile(t, src, "x.mp4", "x"), model.VoiceGiaHuy))
	assert.False(t, s.RegisterNarrated(id, filepath.Join(src, "missing.mp4"), model.VoiceGiaHuy))

	rec, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOriginalOnly, rec.Status)
	assert.Empty(t, rec.Narrated())
}

func TestReloadKeepsInsertionOrder(t *testing.T) {
	src := t.TempDir()
	base := t.TempDir()
	s := openStore(t, base, store.LoadExisting)

	var ids []string
	for _, name := range []string{"one.mp4", "two.mp4", "three.mp4"} {
		id, err := s.RegisterOriginal(writeFile(t, src, name, name), "", "", model.VoiceGiaHuy)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	reopened := openStore(t, base, store.LoadExisting)
	var got []string
	for _, rec := range reopened.ListAll() {
		got = append(got, rec.ID)
	}
	assert.Equal(t, ids, got)

	latest, ok := reopened.Latest()
	require.True(t, ok)
	assert.Equal(t, ids[2], latest.ID)
}

func TestCorruptIndexStartsEmpty(t *testing.T) {
	base := t.TempDir()
	writeFile(t, base, store.MetadataFile, "{not json")

	s := openStore(t, base, store.LoadExisting)
	assert.Empty(t, s.ListAll())
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestResetAllEmptiesManagedDirs(t *testing.T) {
	src := t.TempDir()
	base := t.TempDir()
	work := filepath.Join(t.TempDir(), "workspaces")
	s := openStore(t, base, store.LoadExisting, store.WithWorkDirs(work))

	id, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "orig"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)
	require.True(t, s.RegisterNarrated(id, writeFile(t, src, "b.mp4", "narr"), model.VoiceGiaHuy))
	writeFile(t, work, "scratch.wav", "x")

	require.NoError(t, s.ResetAll())

	assert.Empty(t, s.ListAll())
	for _, dir := range []string{
		filepath.Join(base, store.VideosDir),
		filepath.Join(base, store.NarratedDir),
		filepath.Join(base, store.SegmentsDir),
		work,
	} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err, dir)
		assert.Empty(t, entries, dir)
	}
	assert.Empty(t, openStore(t, base, store.LoadExisting).ListAll())
}

func TestFreshStartDiscardsRecords(t *testing.T) {
	src := t.TempDir()
	base := t.TempDir()
	s := openStore(t, base, store.LoadExisting)
	_, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "orig"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)

	assert.Empty(t, openStore(t, base, store.FreshStart).ListAll())
}

func TestDeleteToleratesMissingFiles(t *testing.T) {
	src := t.TempDir()
	s := openStore(t, t.TempDir(), store.LoadExisting)
	id, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "orig"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)

	rec, err := s.Get(id)
	require.NoError(t, err)
	require.NoError(t, os.Remove(rec.OriginalPath))

	assert.True(t, s.Delete(id))
	assert.False(t, s.Delete(id))
	_, err = s.Get(id)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteKeepsRecordWhenIndexWriteFails(t *testing.T) {
	src := t.TempDir()
	base := t.TempDir()
	s := openStore(t, base, store.LoadExisting)
	id, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "orig"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)
	rec, err := s.Get(id)
	require.NoError(t, err)

	// a directory in place of the index makes the rename fail
	index := filepath.Join(base, store.MetadataFile)
	require.NoError(t, os.Remove(index))
	require.NoError(t, os.MkdirAll(filepath.Join(index, "blocked"), 0o755))

	assert.False(t, s.Delete(id))
	_, err = s.Get(id)
	assert.NoError(t, err, "record survives a failed delete")
	assert.FileExists(t, rec.OriginalPath)
	assert.Len(t, s.ListAll(), 1)

	require.NoError(t, os.RemoveAll(index))
	assert.True(t, s.Delete(id))
	assert.NoFileExists(t, rec.OriginalPath)
	assert.Empty(t, s.ListAll())
}

func TestConcurrentWritesAllReachTheIndex(t *testing.T) {
	const n = 16
	src := writeFile(t, t.TempDir(), "clip.mp4", "video-bytes")
	base := t.TempDir()
	s := openStore(t, base, store.LoadExisting)

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.RegisterOriginal(src, "", fmt.Sprintf("clip %d", i), model.VoiceGiaHuy)
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = id
			if i%2 == 0 {
				assert.NoError(t, s.MarkFailed(id, errors.New("remux failed")))
			} else {
				assert.NoError(t, s.MarkProcessing(id))
			}
		}(i)
	}
	wg.Wait()

	reopened := openStore(t, base, store.LoadExisting)
	require.Len(t, reopened.ListAll(), n)
	for i, id := range ids {
		rec, err := reopened.Get(id)
		require.NoError(t, err, "clip %d", i)
		assert.Equal(t, fmt.Sprintf("clip %d", i), rec.Title)
		if i%2 == 0 {
			assert.Equal(t, model.StatusFailed, rec.Status)
			assert.Equal(t, "remux failed", rec.LastError)
		} else {
			assert.Equal(t, model.StatusProcessing, rec.Status)
		}
		assert.FileExists(t, rec.OriginalPath)
	}
	assert.Len(t, reopened.ByStatus(model.StatusFailed), n/2)
}

func TestStatusTransitionsAndStats(t *testing.T) {
	src := t.TempDir()
	s := openStore(t, t.TempDir(), store.LoadExisting)

	done, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "aaaa"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessing(done))
	require.True(t, s.RegisterNarrated(done, writeFile(t, src, "na.mp4", "nn"), model.VoiceGiaHuy))

	failed, err := s.RegisterOriginal(writeFile(t, src, "b.mp4", "bb"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessing(failed))
	require.NoError(t, s.MarkFailed(failed, errors.New("stage composing: boom")))

	reverted, err := s.RegisterOriginal(writeFile(t, src, "c.mp4", "c"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessing(reverted))
	require.NoError(t, s.RevertToOriginal(reverted))

	assert.ErrorIs(t, s.MarkProcessing(done), model.ErrConfiguration)

	rec, err := s.Get(failed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, "stage composing: boom", rec.LastError)
	assert.True(t, rec.Consistent())

	st := s.Stats()
	assert.Equal(t, model.Stats{
		Total: 3, Completed: 1, PendingOnly: 1, Failed: 1,
		TotalBytes: 7, TransformedBytes: 2,
	}, st)
	assert.Len(t, s.ByStatus(model.StatusFailed), 1)
}

func TestSegmentsAndArtifacts(t *testing.T) {
	src := t.TempDir()
	s := openStore(t, t.TempDir(), store.LoadExisting)
	id, err := s.RegisterOriginal(writeFile(t, src, "a.mp4", "orig"), "", "", model.VoiceGiaHuy)
	require.NoError(t, err)

	_, err = s.Segments(id)
	assert.ErrorIs(t, err, model.ErrNotFound)

	exports := []model.SegmentExport{{Start: 0, End: 5, Text: "xin chào", Voice: "giahuy", File: "seg_0000.wav"}}
	require.NoError(t, s.SaveSegments(id, exports))
	got, err := s.Segments(id)
	require.NoError(t, err)
	assert.Equal(t, exports, got)

	_, _, err = s.OpenArtifact(id, model.ArtifactNarrated)
	assert.ErrorIs(t, err, model.ErrNotFound)

	f, rec, err := s.OpenArtifact(id, model.ArtifactOriginal)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "orig", string(body))
	assert.Equal(t, id, rec.ID)

	require.NoError(t, s.SetMirror(id, "gs://bucket/a.mp4"))
	rec, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/a.mp4", rec.MirrorURI)
}
