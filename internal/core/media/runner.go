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

// Package media wraps the external media tools: yt-dlp for downloads and
// ffmpeg for audio extraction, clip normalization and the final remux. Every
// process runs through a Runner so tests can swap in a fake and cancellation
// of the run context kills the tool.
package media

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Result is the captured outcome of one process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes one external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

const stderrTailLines = 5

// tail keeps the last lines of a tool's stderr for error messages.
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.Join(lines, " | ")
}

// run executes the command and folds a failure into one error carrying the
// exit status and the stderr tail. A done context wins over the exit status.
func run(ctx context.Context, runner Runner, name string, args ...string) (Result, error) {
	res, err := runner.Run(ctx, name, args...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, errors.Wrapf(ctxErr, "%s interrupted", name)
	}
	if err != nil {
		return res, errors.Wrapf(err, "%s exited with status %d: %s", name, res.ExitCode, tail(res.Stderr))
	}
	return res, nil
}
