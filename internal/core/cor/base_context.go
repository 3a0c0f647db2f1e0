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
// narration pipeline is assembled from. This file defines BaseContext, the
// default Context: a property bag, an ordered error list keyed by command
// name, the temp paths to delete on Close and the Go context of the run.
package cor

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

type namedError struct {
	key string
	err error
}

// BaseContext is safe for concurrent use.
type BaseContext struct {
	mu        sync.RWMutex
	data      map[string]interface{}
	errors    []namedError
	tempFiles []string
	context   context.Context
}

// NewBaseContext returns an empty context bound to context.Background.
func NewBaseContext() Context {
	return &BaseContext{
		data:    make(map[string]interface{}),
		context: context.Background(),
	}
}

func (c *BaseContext) SetContext(context context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = context
}

func (c *BaseContext) GetContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.context
}

// Close removes every registered temporary file or directory.
func (c *BaseContext) Close() {
	for _, file := range c.GetTempFiles() {
		if err := os.RemoveAll(file); err != nil {
			slog.Warn("failed to remove temporary path", "path", file, "error", err)
		}
	}
	c.mu.Lock()
	c.tempFiles = nil
	c.mu.Unlock()
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return c
}

func (c *BaseContext) AddTempFile(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.tempFiles))
	copy(out, c.tempFiles)
	return out
}

// AddError records err under key. A second error for the same key replaces
// the first but keeps its position.
func (c *BaseContext) AddError(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.errors {
		if c.errors[i].key == key {
			c.errors[i].err = err
			return
		}
	}
	c.errors = append(c.errors, namedError{key: key, err: err})
}

func (c *BaseContext) GetErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]error, len(c.errors))
	for _, e := range c.errors {
		out[e.key] = e.err
	}
	return out
}

func (c *BaseContext) FirstError() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.errors) == 0 {
		return "", nil
	}
	return c.errors[0].key, c.errors[0].err
}

func (c *BaseContext) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *BaseContext) HasErrors() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.errors) > 0
}
