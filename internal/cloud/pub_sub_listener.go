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

// Package cloud holds the configuration model and the clients for the
// external services the narrator talks to. This file defines PubSubListener,
// which pulls narration triggers from a subscription and hands each message to
// a cor.Command.
//
// Every message gets a fresh cor.Context with the raw payload under CtxIn and
// its own trace span. Messages are acknowledged when the command succeeds or
// when the failure is permanent (an invalid payload, a missing source or a
// silent video). Any other failure nacks the message so Pub/Sub redelivers it.
package cloud

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/go-media-narrator/internal/core/cor"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener binds a subscription. The command may be attached later
// with SetCommand, once the workflows are built.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	return &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}, nil
}

// SetCommand attaches the command if none is set yet.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen receives messages in a background goroutine until ctx is done.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("msg", string(msg.Data)), attribute.String("id", msg.ID))

			if m.command == nil {
				slog.Error("no command attached to listener, message returned", "subscription", m.subscription.String())
				msg.Nack()
				return
			}

			chainCtx := cor.NewBaseContext()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))
			m.command.Execute(chainCtx)

			if Acknowledge(chainCtx) {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
				return
			}
			span.SetStatus(codes.Error, "failed")
			msg.Nack()
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}

// permanentKinds are failures a redelivery of the same message cannot fix.
var permanentKinds = []error{model.ErrConfiguration, model.ErrEmptyTranscript, model.ErrNotFound}

func permanent(err error) bool {
	for _, kind := range permanentKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Acknowledge decides whether a processed message is done with. Errors are
// logged here.
func Acknowledge(chainCtx cor.Context) bool {
	if !chainCtx.HasErrors() {
		return true
	}
	retry := false
	for name, e := range chainCtx.GetErrors() {
		slog.Error("error executing chain", "command", name, "error", e)
		if !permanent(e) {
			retry = true
		}
	}
	return !retry
}
