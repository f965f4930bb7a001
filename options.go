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

package chatstream

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultHeartbeatInterval is the keep-alive period used when none is set.
const DefaultHeartbeatInterval = 15 * time.Second

// Option configures a Bridge at creation time.
type Option func(*Bridge)

// IDGenerator generates unique identifiers given a prefix (e.g. "stream", "chat").
type IDGenerator func(prefix string) string

// DefaultIDGenerator returns identifiers in the format "prefix-<short-uuid>".
func DefaultIDGenerator(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// WithHeartbeatInterval sets the period of keep-alive comments written while
// the provider is silent. Non-positive values are ignored.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithHooks sets lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(b *Bridge) {
		b.hooks = h
	}
}

// WithIDGenerator sets a custom ID generator for stream identifiers.
func WithIDGenerator(gen IDGenerator) Option {
	return func(b *Bridge) {
		b.idGenerator = gen
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt for requests that do not
// carry their own system text.
func WithSystemPrompt(prompt string) Option {
	return func(b *Bridge) {
		b.systemPrompt = prompt
	}
}
