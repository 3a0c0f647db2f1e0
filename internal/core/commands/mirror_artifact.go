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

package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// MirrorArtifact uploads the narrated video to the configured bucket (GCS or
// S3) and remembers the object URI on the record.
type MirrorArtifact struct {
	cor.BaseCommand
	mirror Mirror
	store  Store
}

func NewMirrorArtifact(name string, mirror Mirror, store Store) *MirrorArtifact {
	out := &MirrorArtifact{BaseCommand: *cor.NewBaseCommand(name), mirror: mirror, store: store}
	out.InputParamName = ParamRecord
	return out
}

func (c *MirrorArtifact) Execute(context cor.Context) {
	rec := context.Get(ParamRecord).(*model.VideoRecord)
	path := rec.Narrated()
	if path == "" {
		c.Fail(context, fmt.Errorf("%w: video %s has no narrated artifact", model.ErrNotFound, rec.ID))
		return
	}

	uri, err := c.mirror.Upload(context.GetContext(), path, filepath.Base(path))
	if err != nil {
		c.Fail(context, fmt.Errorf("mirror %s: %w", path, err))
		return
	}
	if err := c.store.SetMirror(rec.ID, uri); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	slog.InfoContext(context.GetContext(), "narrated video mirrored", "id", rec.ID, "uri", uri)
	context.Add(ParamMirrorURI, uri)
}
