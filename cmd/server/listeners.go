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

package main

import (
	"context"

	"github.com/jaycherian/go-media-narrator/internal/core/commands"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
)

// SetupListeners attaches the narration workflow to every configured
// Pub/Sub subscription and starts receiving. Each listener gets its own
// chain: the trigger reader parses the message into a request which the
// workflow then runs.
func SetupListeners(ctx context.Context, state *StateManager) {
	for name, listener := range state.Clients.PubSubListeners {
		chain := cor.NewBaseChain("narration-trigger-" + name)
		chain.AddCommand(commands.NewNarrationTriggerReader(commands.TriggerReaderName))
		chain.AddCommand(state.Workflow)
		listener.SetCommand(chain)
		listener.Listen(ctx)
	}
}
