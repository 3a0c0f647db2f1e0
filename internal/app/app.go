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

// Package app wires the narrator together for the entry points: it loads the
// configuration, builds the cloud clients, opens the artifact store and the
// run journal and assembles the narration workflow and the video service.
package app

import (
	"context"
	"os"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/media"
	"github.com/jaycherian/go-media-narrator/internal/core/services"
	"github.com/jaycherian/go-media-narrator/internal/core/store"
	"github.com/jaycherian/go-media-narrator/internal/core/workflow"
	"github.com/jaycherian/go-media-narrator/internal/runlog"
)

// App holds the long lived components of one process.
type App struct {
	Config   *cloud.Config
	Clients  *cloud.ServiceClients
	Store    *store.ArtifactStore
	Journal  *runlog.Journal // Nil when runlog.path is empty.
	Workflow *workflow.NarrationWorkflow
	Videos   *services.VideoService
}

// SetupOS points the configuration loader at configs/ with the local
// runtime unless the environment already says otherwise.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig loads the validated configuration.
func GetConfig() (*cloud.Config, error) {
	if err := SetupOS(); err != nil {
		return nil, err
	}
	return cloud.Load()
}

// New builds every component. With fresh set, or store.reset_on_start, the
// store and the working directories are wiped first.
func New(ctx context.Context, config *cloud.Config, fresh bool, opts ...workflow.Option) (_ *App, err error) {
	a := &App{Config: config}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Clients, err = cloud.NewCloudServiceClients(ctx, config); err != nil {
		return nil, err
	}

	mode := store.LoadExisting
	if fresh || config.Store.ResetOnStart {
		mode = store.FreshStart
	}
	if a.Store, err = store.Open(config.Store.BaseDir, mode, store.WithWorkDirs(config.Pipeline.WorkDir)); err != nil {
		return nil, err
	}

	if config.RunLog.Path != "" {
		if a.Journal, err = runlog.Open(config.RunLog.Path); err != nil {
			return nil, err
		}
		opts = append([]workflow.Option{workflow.WithJournal(a.Journal)}, opts...)
	}

	collaborators, err := workflow.NewCollaborators(ctx, config, a.Clients)
	if err != nil {
		return nil, err
	}
	if a.Workflow, err = workflow.NewNarrationWorkflow(config, a.Store, collaborators, opts...); err != nil {
		return nil, err
	}

	a.Videos, err = services.NewVideoService(config, a.Store, collaborators.Mirror, services.SummaryGenerator(config, a.Clients))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Doctor checks the external tools the pipeline shells out to.
func Doctor(ctx context.Context, config *cloud.Config) []media.ToolStatus {
	tools := []media.Tool{
		{Name: "ffmpeg", Path: config.Tools.FFmpeg, VersionFlag: "-version"},
		{Name: "yt-dlp", Path: config.Tools.YtDlp, VersionFlag: "--version"},
	}
	if config.Transcriber.Engine == cloud.TranscriberWhisperCLI {
		tools = append(tools, media.Tool{Name: "whisper", Path: config.Tools.Whisper, VersionFlag: "--help"})
	}
	return media.CheckTools(ctx, media.ExecRunner{}, tools...)
}

// Close releases the journal and the cloud clients.
func (a *App) Close() {
	if a.Journal != nil {
		_ = a.Journal.Close()
	}
	a.Clients.Close()
}
