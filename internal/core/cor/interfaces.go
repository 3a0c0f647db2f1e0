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

// Package cor (Chain of Responsibility) provides the building blocks the
// narration pipeline is assembled from. A workflow is a Chain of Commands that
// share a single Context: each command reads its inputs from the context, does
// one unit of work (download, transcode, synthesize...) and writes its outputs
// back for the commands that follow. Errors are collected in the context and,
// by default, stop the chain at the first failing command.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the default keys used to pipe data between commands.
const (
	// CtxIn is the default key for a command's primary input. BaseChain fills it
	// with the previous command's CtxOut value.
	CtxIn = "__IN__"
	// CtxOut is the default key a command writes its primary output to.
	CtxOut = "__OUT__"
)

// Context is the shared property bag of one workflow execution. Implementations
// must be safe for use by the worker goroutines a command may start.
type Context interface {
	// SetContext sets the Go context carrying cancellation and trace spans.
	SetContext(context context.Context)

	// GetContext returns the Go context.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error under the name of the command that raised it.
	AddError(key string, err error)

	// GetErrors returns all recorded errors keyed by command name.
	GetErrors() map[string]error

	// FirstError returns the earliest recorded error and its key.
	FirstError() (string, error)

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes the value stored under key.
	Remove(key string)

	// HasErrors reports whether any error was recorded.
	HasErrors() bool

	// AddTempFile registers a file or directory to delete on Close.
	AddTempFile(file string)

	// GetTempFiles returns the registered temporary paths.
	GetTempFiles() []string

	// Close deletes every registered temporary path.
	Close()
}

// Executable is anything with a unit of work to run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one step of a workflow.
type Command interface {
	Executable

	// GetName returns the command name used in errors, logs and spans.
	GetName() string

	// GetInputParam returns the context key of the primary input.
	GetInputParam() string

	// GetOutputParam returns the context key of the primary output.
	GetOutputParam() string

	// IsExecutable checks the command's preconditions against the context.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command made of an ordered list of Commands, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure makes the chain run every command even after errors.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the chain.
	AddCommand(command Command) Chain
}
