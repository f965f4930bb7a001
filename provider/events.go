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

// Package provider holds the backend-agnostic events that text generation
// backends push to the bridge.
package provider

// EventSink receives provider events in arrival order.
// Returning a non-nil error tells the provider to stop and release its
// upstream connection.
type EventSink func(event Event) error

// Event is emitted by providers. The set of implementations is closed.
type Event interface {
	isProviderEvent()
}

// TextDeltaEvent is one fragment of generated text, forwarded as soon as it
// is available. Fragments are never merged, reordered or deduplicated.
type TextDeltaEvent struct {
	Delta string
}

func (TextDeltaEvent) isProviderEvent() {}

// FinishReason represents why the backend stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonUnknown       FinishReason = "unknown"
)

// Usage is the token accounting reported by the backend, when it has one.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamEndEvent is emitted exactly once, after the last fragment of a
// successful generation.
type StreamEndEvent struct {
	FinishReason FinishReason
	Usage        *Usage
}

func (StreamEndEvent) isProviderEvent() {}

// Collect returns a sink that appends every fragment to dst and records
// the end event in end.
func Collect(dst *[]string, end *StreamEndEvent) EventSink {
	return func(event Event) error {
		switch e := event.(type) {
		case TextDeltaEvent:
			*dst = append(*dst, e.Delta)
		case StreamEndEvent:
			if end != nil {
				*end = e
			}
		}
		return nil
	}
}
