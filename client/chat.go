// Licensed to Alexandre VILAIN under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Alexandre VILAIN licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package client

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// StatusThinking is shown while a reply is being produced.
const StatusThinking = "Thinking…"

// Renderer displays the conversation. It receives the same calls whether
// the reply comes from the server or from the simulator.
type Renderer interface {
	// Render redraws the conversation.
	Render(messages []Message)
	// Announce reports a new fragment to assistive technology.
	Announce(text string)
	// SetStatus shows a transient status line; an empty string clears it.
	SetStatus(status string)
}

// Transport selects the server endpoint used by Chat.
type Transport string

const (
	TransportSSE  Transport = "sse"
	TransportJSON Transport = "json"
)

// Chat drives one conversation: it sends user messages, renders the reply
// as it arrives and falls back to the simulator when the server fails.
type Chat struct {
	Consumer       *Consumer
	Simulator      *Simulator
	Session        *Session
	Renderer       Renderer
	Transport      Transport
	ConversationID string
	TenantID       string
	Logger         *zap.Logger

	inFlight atomic.Bool
}

// NewChat returns a chat using the SSE transport, a fresh session and a
// new conversation id.
func NewChat(consumer *Consumer, renderer Renderer) *Chat {
	return &Chat{
		Consumer:       consumer,
		Simulator:      NewSimulator(),
		Session:        NewSession(),
		Renderer:       renderer,
		Transport:      TransportSSE,
		ConversationID: NewConversationID(),
		Logger:         zap.NewNop(),
	}
}

// Send posts text and waits until the reply is complete. Blank input is
// ignored. ErrBusy is returned while a previous reply is in progress.
// A server failure is logged and answered by the simulator; only
// cancellation of ctx is returned to the caller.
func (c *Chat) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.inFlight.Store(false)

	c.Session.AddUser(text)
	c.Renderer.Render(c.Session.Messages())
	c.Renderer.SetStatus(StatusThinking)
	defer c.Renderer.SetStatus("")

	err := c.live(ctx, text)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	c.logger().Warn("backend unavailable, simulating reply",
		zap.String("conversation_id", c.ConversationID),
		zap.String("transport", string(c.Transport)),
		zap.Error(err),
	)
	return c.simulate(ctx, text)
}

func (c *Chat) live(ctx context.Context, text string) error {
	if c.Transport == TransportJSON {
		reply, err := c.Consumer.Ask(ctx, text, c.ConversationID, c.TenantID)
		if err != nil {
			return err
		}
		if err := c.Session.Begin(); err != nil {
			return err
		}
		c.Session.Append(reply)
		c.Session.Finish()
		c.Renderer.Render(c.Session.Messages())
		c.Renderer.Announce(reply)
		return nil
	}
	return c.Consumer.Consume(ctx, text, c.Session, c.Renderer)
}

func (c *Chat) simulate(ctx context.Context, text string) error {
	if err := c.Session.Begin(); err != nil {
		return err
	}
	err := c.Simulator.Simulate(ctx, text, func(chunk string) error {
		c.Session.Append(chunk)
		c.Renderer.Render(c.Session.Messages())
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Renderer.Announce(chunk)
		return nil
	})
	if err != nil {
		c.Session.Abandon()
		return err
	}
	c.Session.Finish()
	c.Renderer.Render(c.Session.Messages())
	return nil
}

func (c *Chat) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
