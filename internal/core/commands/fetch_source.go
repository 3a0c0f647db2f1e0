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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// commands of the fetching stage: FetchSource brings the source video into the
// run workspace, RegisterOriginal copies it into the artifact store.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FetchSource resolves the request's source into a local video file. Remote
// URLs are downloaded into the workspace, local files are used in place.
type FetchSource struct {
	cor.BaseCommand
	downloader Downloader
}

func NewFetchSource(name string, downloader Downloader) *FetchSource {
	out := &FetchSource{BaseCommand: *cor.NewBaseCommand(name), downloader: downloader}
	out.InputParamName = ParamRequest
	return out
}

// IsExecutable needs the request and, for remote sources, a workspace.
func (c *FetchSource) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	req, ok := context.Get(ParamRequest).(*model.NarrationRequest)
	if !ok {
		return false
	}
	return req.LocalPath != "" || context.Get(ParamWorkspace) != nil
}

func (c *FetchSource) Execute(context cor.Context) {
	req := context.Get(ParamRequest).(*model.NarrationRequest)
	span := trace.SpanFromContext(context.GetContext())
	span.SetAttributes(attribute.String("source", req.Source()))

	var path, title string
	if req.LocalPath != "" {
		info, err := os.Stat(req.LocalPath)
		if err != nil || info.IsDir() {
			c.Fail(context, fmt.Errorf("%w: source file %s", model.ErrNotFound, req.LocalPath))
			return
		}
		path = req.LocalPath
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	} else {
		workspace := context.Get(ParamWorkspace).(string)
		var err error
		path, title, err = c.downloader.Fetch(context.GetContext(), req.SourceURL, workspace)
		if err != nil {
			c.Fail(context, err)
			return
		}
	}
	if req.Title != "" {
		title = req.Title
	}

	c.Succeed(context)
	context.Add(ParamSourcePath, path)
	context.Add(ParamTitle, title)
	context.Add(c.GetOutputParam(), path)
}
