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

package media

import (
	"context"
	"strings"
	"time"
)

// ToolStatus is the outcome of probing one external tool.
type ToolStatus struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the tool answered.
func (t ToolStatus) OK() bool { return t.Error == "" }

// Tool names a binary and the flag that prints its version.
type Tool struct {
	Name        string
	Path        string
	VersionFlag string
}

// CheckTools runs every tool with its version flag.
func CheckTools(ctx context.Context, runner Runner, tools ...Tool) []ToolStatus {
	out := make([]ToolStatus, 0, len(tools))
	for _, tool := range tools {
		status := ToolStatus{Name: tool.Name, Path: tool.Path}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		res, err := run(checkCtx, runner, tool.Path, tool.VersionFlag)
		cancel()
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Version = firstLine(res.Stdout)
		}
		out = append(out, status)
	}
	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
