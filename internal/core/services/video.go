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

// Package services contains the business logic behind the HTTP API. This
// file, `video.go`, defines the VideoService, which reads narrated videos out
// of the artifact store, hands out time-limited URLs for mirrored artifacts
// and asks the generative model for summaries of narrated transcripts.
package services

import (
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/commands"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/core/store"
)

// SummaryModel is the agent_models key used for summaries. The translator
// model is used when it is not configured.
const SummaryModel = "summarizer"

const paramSummary = "summary.document"

// VideoService is the read side of the artifact store plus the optional
// cloud extras (signed URLs and summaries).
type VideoService struct {
	Store     *store.ArtifactStore
	Mirror    commands.Mirror // Nil when no object storage is configured.
	URLExpiry time.Duration
	summary   cor.Chain // Nil when no generative model is configured.
}

// NewVideoService builds the service. mirror and generator may be nil; the
// features that need them then report a configuration error.
func NewVideoService(
	config *cloud.Config,
	artifacts *store.ArtifactStore,
	mirror commands.Mirror,
	generator cloud.ContentGenerator) (*VideoService, error) {

	out := &VideoService{
		Store:     artifacts,
		Mirror:    mirror,
		URLExpiry: time.Duration(config.Storage.SignedURLMinutes) * time.Minute,
	}
	if generator == nil {
		return out, nil
	}

	prompt := config.PromptTemplates.SummaryPrompt
	if prompt == "" {
		prompt = commands.DefaultSummaryPrompt
	}
	summaryTemplate, err := template.New("summary-template").Parse(prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: summary prompt: %v", model.ErrConfiguration, err)
	}
	chain := cor.NewBaseChain("video-summary")
	chain.AddCommand(commands.NewTranscriptSummaryCreator(
		"generate-transcript-summary",
		generator,
		summaryTemplate,
		config.Translator.Target,
		config.Timeouts.Policy(config.Timeouts.TranslateSeconds)))
	chain.AddCommand(commands.NewSummaryJsonToStruct("convert-transcript-summary", paramSummary))
	out.summary = chain
	return out, nil
}

// SummaryGenerator picks the model used for summaries out of the service
// clients, or nil when there is none.
func SummaryGenerator(config *cloud.Config, clients *cloud.ServiceClients) cloud.ContentGenerator {
	if clients == nil {
		return nil
	}
	if m, ok := clients.AgentModels[SummaryModel]; ok {
		return m
	}
	if m, ok := clients.AgentModels[config.Translator.Model]; ok {
		return m
	}
	return nil
}

func (s *VideoService) List() []*model.VideoRecord {
	return s.Store.ListAll()
}

// ListByStatus filters by lifecycle status; an empty status lists everything.
func (s *VideoService) ListByStatus(status model.Status) ([]*model.VideoRecord, error) {
	if status == "" {
		return s.List(), nil
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrConfiguration, status)
	}
	return s.Store.ByStatus(status), nil
}

// Latest returns the most recently registered video.
func (s *VideoService) Latest() (*model.VideoRecord, error) {
	rec, ok := s.Store.Latest()
	if !ok {
		return nil, fmt.Errorf("%w: no videos", model.ErrNotFound)
	}
	return rec, nil
}

func (s *VideoService) Stats() model.Stats {
	return s.Store.Stats()
}

func (s *VideoService) Get(id string) (*model.VideoRecord, error) {
	return s.Store.Get(id)
}

func (s *VideoService) Delete(id string) error {
	if !s.Store.Delete(id) {
		if _, err := s.Store.Get(id); err == nil {
			return fmt.Errorf("%w: video %s could not be deleted", model.ErrStorage, id)
		}
		return fmt.Errorf("%w: video %s", model.ErrNotFound, id)
	}
	return nil
}

// Open opens an artifact for streaming. The caller closes the file.
func (s *VideoService) Open(id string, kind model.ArtifactKind) (*os.File, *model.VideoRecord, error) {
	return s.Store.OpenArtifact(id, kind)
}

func (s *VideoService) Segments(id string) ([]model.SegmentExport, error) {
	return s.Store.Segments(id)
}

// SignedURL returns a time-limited URL of the mirrored narrated video.
func (s *VideoService) SignedURL(ctx context.Context, id string) (string, error) {
	rec, err := s.Store.Get(id)
	if err != nil {
		return "", err
	}
	if s.Mirror == nil {
		return "", fmt.Errorf("%w: no object storage configured", model.ErrConfiguration)
	}
	if rec.MirrorURI == "" {
		return "", fmt.Errorf("%w: video %s was not mirrored", model.ErrNotFound, id)
	}
	return s.Mirror.SignedURL(ctx, rec.MirrorURI, s.URLExpiry)
}

// Summarize asks the generative model for a summary of the narrated
// transcript of a video.
func (s *VideoService) Summarize(ctx context.Context, id string) (*model.VideoSummary, error) {
	if s.summary == nil {
		return nil, fmt.Errorf("%w: no generative model configured for summaries", model.ErrConfiguration)
	}
	segments, err := s.Store.Segments(id)
	if err != nil {
		return nil, err
	}

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	chainCtx.Add(commands.ParamSummarySegments, segments)
	s.summary.Execute(chainCtx)
	if _, err := chainCtx.FirstError(); err != nil {
		return nil, err
	}

	doc := chainCtx.Get(paramSummary).(*model.VideoSummary)
	doc.VideoID = id
	return doc, nil
}
