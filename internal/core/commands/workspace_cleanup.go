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
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
)

// CleanupWorkspace schedules the run workspace for removal when the context
// is closed. With keep set, only the intermediate audio registered by earlier
// commands is removed and the workspace stays for inspection.
type CleanupWorkspace struct {
	cor.BaseCommand
	keep bool
}

func NewCleanupWorkspace(name string, keep bool) *CleanupWorkspace {
	out := &CleanupWorkspace{BaseCommand: *cor.NewBaseCommand(name), keep: keep}
	out.InputParamName = ParamWorkspace
	return out
}

func (c *CleanupWorkspace) Execute(context cor.Context) {
	if !c.keep {
		context.AddTempFile(context.Get(ParamWorkspace).(string))
	}
	c.Succeed(context)
}
