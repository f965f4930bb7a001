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

// Package chatstream bridges text generation backends to browsers over
// Server-Sent Events.
//
// A Provider pushes fragments of generated text as they arrive upstream.
// The Bridge forwards each fragment as one SSE data record, keeps the
// connection alive with periodic comments while the backend is silent,
// and terminates the stream with exactly one done or error record.
package chatstream

import "strings"

// StreamRequest is a single generation request. It is not modified once
// handed to the bridge.
type StreamRequest struct {
	Prompt         string `json:"prompt"`
	System         string `json:"system,omitempty"`
	Context        string `json:"context,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
}

// Validate returns ErrPromptRequired when the prompt is blank.
func (r StreamRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrPromptRequired
	}
	return nil
}

// ChatResponse is the body returned by the non-streaming endpoint.
type ChatResponse struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
}

// ErrorResponse is the JSON body of a failed non-streaming request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Outcome is the terminal state of a stream.
type Outcome string

const (
	// OutcomeRejected means the request was invalid and no stream was opened.
	OutcomeRejected Outcome = "rejected"
	// OutcomeCompleted means the done record was written.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the provider or the client connection failed.
	OutcomeFailed Outcome = "failed"
)
