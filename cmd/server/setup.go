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

package main

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/go-media-narrator/internal/api"
	"github.com/jaycherian/go-media-narrator/internal/app"
	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/workflow"
)

// StateManager holds the shared components of the server process.
type StateManager struct {
	*app.App
	events *api.Hub
}

// InitState builds the application with run progress published to the
// websocket hub, and warns about missing external tools.
func InitState(ctx context.Context, config *cloud.Config) (*StateManager, error) {
	events := api.NewHub(0)
	a, err := app.New(ctx, config, false, workflow.WithEvents(events))
	if err != nil {
		return nil, err
	}
	for _, status := range app.Doctor(ctx, config) {
		if !status.OK() {
			slog.Warn("external tool unavailable", "tool", status.Name, "error", status.Error)
		}
	}
	return &StateManager{App: a, events: events}, nil
}

// Router builds the HTTP handler. ctx bounds the narrations started over
// the API.
func (s *StateManager) Router(ctx context.Context) *gin.Engine {
	server := &api.Server{
		Videos:      s.Videos,
		Narrator:    s.Workflow,
		Events:      s.events,
		BaseContext: ctx,
	}
	if s.Journal != nil {
		server.Runs = s.Journal
	}
	return api.NewRouter(server, s.Config.Application.Name)
}
