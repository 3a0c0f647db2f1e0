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
// narration pipeline is assembled from. This file defines BaseChain, the
// default Chain implementation.
//
// A BaseChain runs its commands in order against one shared Context:
//
//  1. one span covers the whole chain and one child span covers each command;
//  2. before a command runs the chain checks the Go context for cancellation
//     and the shared Context for earlier errors, and stops unless
//     continueOnFailure is set;
//  3. a command whose preconditions fail records an error instead of being
//     silently skipped;
//  4. after each command the value in CtxOut is moved to CtxIn so the output of
//     one step feeds the next.
package cor

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// ErrNotExecutable is recorded for a command whose preconditions are not met.
var ErrNotExecutable = errors.New("command not executable")

// Observer is notified right before a command of the chain starts.
type Observer func(ctx context.Context, command Command)

// BaseChain holds an ordered slice of commands executed sequentially.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
	observers         []Observer
}

func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

// ContinueOnFailure sets whether the chain keeps going after a command fails.
func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

// AddCommand appends a command to the chain.
func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Observe registers an observer called before every command runs.
func (c *BaseChain) Observe(observer Observer) *BaseChain {
	c.observers = append(c.observers, observer)
	return c
}

// Commands returns the names of the chained commands in execution order.
func (c *BaseChain) Commands() []string {
	out := make([]string, 0, len(c.commands))
	for _, command := range c.commands {
		out = append(out, command.GetName())
	}
	return out
}

// IsExecutable only needs a Go context; each command checks its own inputs.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs the commands in order.
//
// Inputs:
//   - chCtx: the shared chain context. Each command reads its input from it
//     and writes its output back; failures are recorded with AddError.
//
// Outputs:
//   - None. The chain stops at the first recorded error unless it was built
//     to continue on failure, and it stops when the Go context is done. Every
//     command gets its own span under "<chain>_execute".
func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}
		if err := outerCtx.Err(); err != nil {
			chCtx.AddError(command.GetName(), err)
			break
		}

		commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		errorsBefore := len(chCtx.GetErrors())

		if command.IsExecutable(chCtx) {
			for _, observer := range c.observers {
				observer(commandContext, command)
			}
			chCtx.SetContext(commandContext)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)
		} else {
			chCtx.AddError(command.GetName(), fmt.Errorf("%w: %s", ErrNotExecutable, command.GetName()))
		}

		if len(chCtx.GetErrors()) > errorsBefore {
			commandSpan.SetStatus(codes.Error, "command failed")
		} else {
			commandSpan.SetStatus(codes.Ok, "")
		}
		commandSpan.End()

		// flip-flop the output of this command into the input of the next
		outputValue := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if outputValue != nil {
			chCtx.Add(CtxIn, outputValue)
		}
		chCtx.Remove(CtxOut)
	}

	chCtx.SetContext(parentCtx)
	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	} else {
		chainSpan.SetStatus(codes.Ok, "")
	}
}
