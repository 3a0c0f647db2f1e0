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

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// NarrationTriggerReader turns a raw Pub/Sub payload into a NarrationRequest.
type NarrationTriggerReader struct {
	cor.BaseCommand
}

func NewNarrationTriggerReader(name string) *NarrationTriggerReader {
	return &NarrationTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *NarrationTriggerReader) Execute(context cor.Context) {
	in, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		c.Fail(context, fmt.Errorf("%w: unexpected trigger payload %T", model.ErrConfiguration, context.Get(c.GetInputParam())))
		return
	}
	req, err := cloud.ParseTriggerMessage([]byte(in))
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(ParamRequest, req)
	context.Add(c.GetOutputParam(), req)
}
