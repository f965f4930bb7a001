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

import "context"

// Hooks contains optional callbacks for stream lifecycle events.
// All fields default to nil (no-op). Safe to use as zero value.
//
// Hooks are called from the goroutine serving the request and must not
// block.
type Hooks struct {
	// OnStreamStart is called once the SSE preamble has been flushed and
	// before the provider is started.
	OnStreamStart func(ctx context.Context, streamID string, req StreamRequest)

	// OnFragment is called after a fragment has been written to the client.
	OnFragment func(ctx context.Context, streamID string, fragment string)

	// OnHeartbeat is called after a keep-alive comment has been written.
	OnHeartbeat func(ctx context.Context, streamID string)

	// OnFinish is called exactly once per request with its terminal outcome.
	// err is nil for OutcomeCompleted.
	OnFinish func(ctx context.Context, streamID string, outcome Outcome, err error)
}

func (h Hooks) streamStart(ctx context.Context, id string, req StreamRequest) {
	if h.OnStreamStart != nil {
		h.OnStreamStart(ctx, id, req)
	}
}

func (h Hooks) fragment(ctx context.Context, id, fragment string) {
	if h.OnFragment != nil {
		h.OnFragment(ctx, id, fragment)
	}
}

func (h Hooks) heartbeat(ctx context.Context, id string) {
	if h.OnHeartbeat != nil {
		h.OnHeartbeat(ctx, id)
	}
}

func (h Hooks) finish(ctx context.Context, id string, outcome Outcome, err error) {
	if h.OnFinish != nil {
		h.OnFinish(ctx, id, outcome, err)
	}
}
