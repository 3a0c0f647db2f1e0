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

// Package store implements the ArtifactStore: the on-disk registry of source
// videos and their narrated versions. The store owns a base directory laid
// out as
//
//	<base>/videos/                 canonical copies of the source videos
//	<base>/transformed/            narrated outputs
//	<base>/segments/<id>.json      per-video segment exports
//	<base>/video_metadata.json     the metadata index, keyed by record id
//
// All mutations are serialized by one mutex and every change rewrites the
// whole index through a temp file and a rename, so a crash never leaves a
// half-written index behind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/media"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/telemetry"
)

// OpenMode selects what Open does with existing state.
type OpenMode int

const (
	// LoadExisting keeps the records found on disk.
	LoadExisting OpenMode = iota
	// FreshStart wipes the base directory and the registered working
	// directories before use.
	FreshStart
)

func (m OpenMode) String() string {
	if m == FreshStart {
		return "fresh_start"
	}
	return "load_existing"
}

const (
	VideosDir    = "videos"
	NarratedDir  = "transformed"
	SegmentsDir  = "segments"
	MetadataFile = "video_metadata.json"
)

// ArtifactStore is safe for concurrent use.
type ArtifactStore struct {
	mu       sync.Mutex
	baseDir  string
	workDirs []string
	records  map[string]*model.VideoRecord
	order    []string
	log      *slog.Logger
}

// Option customizes an ArtifactStore.
type Option func(*ArtifactStore)

// WithWorkDirs registers extra directories (run workspaces, scratch audio)
// that ResetAll clears together with the base directory.
func WithWorkDirs(dirs ...string) Option {
	return func(s *ArtifactStore) {
		for _, d := range dirs {
			if d != "" {
				s.workDirs = append(s.workDirs, d)
			}
		}
	}
}

// Open creates the store rooted at baseDir.
func Open(baseDir string, mode OpenMode, opts ...Option) (*ArtifactStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: empty store directory", model.ErrConfiguration)
	}
	s := &ArtifactStore{
		baseDir: baseDir,
		records: make(map[string]*model.VideoRecord),
		log:     telemetry.Component("artifact_store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if mode == FreshStart {
		if err := s.ResetAll(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}
	s.load()
	return s, nil
}

// BaseDir returns the store root.
func (s *ArtifactStore) BaseDir() string { return s.baseDir }

func (s *ArtifactStore) metadataPath() string { return filepath.Join(s.baseDir, MetadataFile) }

func (s *ArtifactStore) ensureDirs() error {
	for _, d := range []string{VideosDir, NarratedDir, SegmentsDir} {
		if err := os.MkdirAll(filepath.Join(s.baseDir, d), 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", model.ErrStorage, d, err)
		}
	}
	for _, d := range s.workDirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", model.ErrStorage, d, err)
		}
	}
	return nil
}

// load reads the index. A missing or unreadable index yields an empty store.
func (s *ArtifactStore) load() {
	data, err := os.ReadFile(s.metadataPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("metadata index unreadable, starting empty", "path", s.metadataPath(), "error", err)
		}
		return
	}
	records := make(map[string]*model.VideoRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Warn("metadata index corrupt, starting empty", "path", s.metadataPath(), "error", err)
		return
	}
	for id, rec := range records {
		if rec == nil {
			continue
		}
		if rec.ID == "" {
			rec.ID = id
		}
		if !rec.Status.Valid() {
			rec.Status = model.StatusOriginalOnly
		}
		s.records[id] = rec
		s.order = append(s.order, id)
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.records[s.order[i]], s.records[s.order[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	s.log.Info("metadata index loaded", "records", len(s.order))
}

// persist rewrites the index. Callers hold s.mu.
func (s *ArtifactStore) persist() error {
	if err := writeJSONAtomic(s.metadataPath(), s.records); err != nil {
		return fmt.Errorf("%w: write metadata index: %v", model.ErrStorage, err)
	}
	return nil
}

// RegisterOriginal copies localPath into the store and creates a record with
// status original_only. The source file is left in place.
func (s *ArtifactStore) RegisterOriginal(localPath, sourceURL, title string, voice model.Voice) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: source video %s", model.ErrNotFound, localPath)
	}
	if title == "" {
		base := filepath.Base(localPath)
		title = base[:len(base)-len(filepath.Ext(base))]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.NewVideoID()
	dest := filepath.Join(s.baseDir, VideosDir, fmt.Sprintf("%s_%s", id, media.SanitizeFilename(filepath.Base(localPath))))
	size, err := copyFile(localPath, dest)
	if err != nil {
		return "", fmt.Errorf("%w: copy original: %v", model.ErrStorage, err)
	}

	// CreatedAt is the reload order, keep it strictly increasing
	created := time.Now().UTC()
	if n := len(s.order); n > 0 {
		if last := s.records[s.order[n-1]].CreatedAt; !created.After(last) {
			created = last.Add(time.Nanosecond)
		}
	}
	s.records[id] = &model.VideoRecord{
		ID:           id,
		Title:        title,
		SourceURL:    sourceURL,
		OriginalPath: dest,
		FileSize:     size,
		CreatedAt:    created,
		VoiceProfile: string(voice),
		Status:       model.StatusOriginalOnly,
	}
	s.order = append(s.order, id)
	if err := s.persist(); err != nil {
		s.dropLocked(id)
		_ = os.Remove(dest)
		return "", err
	}
	s.log.Info("original registered", "id", id, "title", title, "bytes", size)
	return id, nil
}

// RegisterNarrated copies the narrated output into the store and marks the
// record completed.
//
// Inputs:
//   - id: a record created by RegisterOriginal.
//   - localPath: the remuxed file. The id prefix of the stored original is
//     not repeated in the stored name.
//   - voice: the narration voice, kept on the record and in the file name.
//
// Outputs:
//   - true once the copy and the index write both succeeded. On false the
//     record is left untouched. Registering the same file twice is harmless.
func (s *ArtifactStore) RegisterNarrated(id, localPath string, voice model.Voice) bool {
	info, err := os.Stat(localPath)
	if err != nil || info.IsDir() {
		s.log.Warn("narrated output missing", "id", id, "path", localPath)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		s.log.Warn("narrated output for unknown record", "id", id)
		return false
	}
	prior := rec.Clone()

	// the remuxer names its output after the stored original, which already
	// carries the id
	base := strings.Replace(filepath.Base(localPath), id+"_", "", 1)
	name := fmt.Sprintf("%s_transformed_%s_%s", id, voice, media.SanitizeFilename(base))
	dest := filepath.Join(s.baseDir, NarratedDir, name)
	size, err := copyFile(localPath, dest)
	if err != nil {
		s.log.Error("copy narrated output", "id", id, "error", err)
		return false
	}

	now := time.Now().UTC()
	rec.NarratedPath = &dest
	rec.VoiceProfile = string(voice)
	rec.Status = model.StatusCompleted
	rec.TransformedSize = &size
	rec.NarratedAt = &now
	rec.LastError = ""

	if err := s.persist(); err != nil {
		s.log.Error("persist narrated output", "id", id, "error", err)
		*rec = *prior
		if prior.Narrated() != dest {
			_ = os.Remove(dest)
		}
		return false
	}
	if old := prior.Narrated(); old != "" && old != dest {
		_ = os.Remove(old)
	}
	return true
}

// Get returns a copy of the record.
func (s *ArtifactStore) Get(id string) (*model.VideoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: video %s", model.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// ListAll returns every record in insertion order.
func (s *ArtifactStore) ListAll() []*model.VideoRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.VideoRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// Latest returns the most recently registered record.
func (s *ArtifactStore) Latest() (*model.VideoRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil, false
	}
	return s.records[s.order[len(s.order)-1]].Clone(), true
}

// ByStatus returns the records with the given status in insertion order.
func (s *ArtifactStore) ByStatus(status model.Status) []*model.VideoRecord {
	var out []*model.VideoRecord
	for _, rec := range s.ListAll() {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

// Paths returns the original and narrated artifact paths of a record.
func (s *ArtifactStore) Paths(id string) (original string, narrated string, err error) {
	rec, err := s.Get(id)
	if err != nil {
		return "", "", err
	}
	return rec.OriginalPath, rec.Narrated(), nil
}

// OpenArtifact opens one of the record's files for streaming. The caller
// closes the file.
func (s *ArtifactStore) OpenArtifact(id string, kind model.ArtifactKind) (*os.File, *model.VideoRecord, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	path := rec.OriginalPath
	if kind == model.ArtifactNarrated {
		path = rec.Narrated()
	}
	if path == "" {
		return nil, nil, fmt.Errorf("%w: %s artifact of %s", model.ErrNotFound, kind, id)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", model.ErrNotFound, path)
		}
		return nil, nil, fmt.Errorf("%w: open %s: %v", model.ErrStorage, path, err)
	}
	return f, rec, nil
}

// Delete removes the record and its files. Files already gone are ignored.
// It returns false when the id is unknown or the index could not be
// rewritten; in that case the record and its files are kept.
func (s *ArtifactStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	pos := slices.Index(s.order, id)
	s.dropLocked(id)
	if err := s.persist(); err != nil {
		s.log.Error("persist after delete, record kept", "id", id, "error", err)
		s.records[id] = rec
		s.order = slices.Insert(s.order, pos, id)
		return false
	}
	for _, p := range []string{rec.OriginalPath, rec.Narrated(), s.segmentsPath(id)} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("remove artifact", "id", id, "path", p, "error", err)
		}
	}
	return true
}

func (s *ArtifactStore) dropLocked(id string) {
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Stats aggregates the current records.
func (s *ArtifactStore) Stats() model.Stats {
	var st model.Stats
	for _, rec := range s.ListAll() {
		st.Total++
		st.TotalBytes += rec.FileSize
		switch rec.Status {
		case model.StatusCompleted:
			st.Completed++
			if rec.TransformedSize != nil {
				st.TransformedBytes += *rec.TransformedSize
			}
		case model.StatusOriginalOnly:
			st.PendingOnly++
		case model.StatusProcessing:
			st.Processing++
		case model.StatusFailed:
			st.Failed++
		}
	}
	return st
}

// ResetAll deletes every record, every managed file and the registered
// working directories, then recreates the empty layout.
func (s *ArtifactStore) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range append([]string{s.baseDir}, s.workDirs...) {
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("%w: reset %s: %v", model.ErrStorage, d, err)
		}
	}
	s.records = make(map[string]*model.VideoRecord)
	s.order = nil
	if err := s.ensureDirs(); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.log.Info("store reset", "base_dir", s.baseDir, "work_dirs", s.workDirs)
	return nil
}

func (s *ArtifactStore) update(id string, fn func(rec *model.VideoRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: video %s", model.ErrNotFound, id)
	}
	prior := rec.Clone()
	if err := fn(rec); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		*rec = *prior
		return err
	}
	return nil
}

// MarkProcessing flags a record as being worked on by a run.
func (s *ArtifactStore) MarkProcessing(id string) error {
	return s.update(id, func(rec *model.VideoRecord) error {
		if rec.Status == model.StatusCompleted {
			return fmt.Errorf("%w: video %s is already narrated", model.ErrConfiguration, id)
		}
		rec.Status = model.StatusProcessing
		rec.LastError = ""
		return nil
	})
}

// MarkFailed records the cause of a failed run. Completed records keep their
// status.
func (s *ArtifactStore) MarkFailed(id string, cause error) error {
	return s.update(id, func(rec *model.VideoRecord) error {
		if rec.Status == model.StatusCompleted {
			return nil
		}
		rec.Status = model.StatusFailed
		if cause != nil {
			rec.LastError = cause.Error()
		}
		return nil
	})
}

// RevertToOriginal puts a non-completed record back to original_only.
func (s *ArtifactStore) RevertToOriginal(id string) error {
	return s.update(id, func(rec *model.VideoRecord) error {
		if rec.Status == model.StatusCompleted {
			return nil
		}
		rec.Status = model.StatusOriginalOnly
		rec.LastError = ""
		return nil
	})
}

// SetMirror stores the object storage URI of the narrated artifact.
func (s *ArtifactStore) SetMirror(id, uri string) error {
	return s.update(id, func(rec *model.VideoRecord) error {
		rec.MirrorURI = uri
		return nil
	})
}

func (s *ArtifactStore) segmentsPath(id string) string {
	return filepath.Join(s.baseDir, SegmentsDir, id+".json")
}

// SaveSegments writes the per-video segment export, replacing any earlier one.
func (s *ArtifactStore) SaveSegments(id string, exports []model.SegmentExport) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return WriteSegments(s.segmentsPath(id), exports)
}

// Segments reads the per-video segment export.
func (s *ArtifactStore) Segments(id string) ([]model.SegmentExport, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.segmentsPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: segments of %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	var out []model.SegmentExport
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode segments of %s: %v", model.ErrStorage, id, err)
	}
	return out, nil
}

// WriteSegments writes a segment export file atomically. A nil slice is
// written as an empty array.
func WriteSegments(path string, exports []model.SegmentExport) error {
	if exports == nil {
		exports = []model.SegmentExport{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	if err := writeJSONAtomic(path, exports); err != nil {
		return fmt.Errorf("%w: write segments %s: %v", model.ErrStorage, path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// copyFile copies src to dst through a temp file in dst's directory.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, err
	}
	return n, nil
}
