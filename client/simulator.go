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
	"time"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the number of runes per simulated fragment.
	DefaultChunkSize = 8
	// DefaultChunkDelay is the pause before each simulated fragment.
	DefaultChunkDelay = 60 * time.Millisecond
)

// Simulator produces a canned reply in small timed chunks so that the
// widget behaves the same when the backend is down.
type Simulator struct {
	ChunkSize int
	Delay     time.Duration
}

// NewSimulator returns a simulator with the default chunk size and delay.
func NewSimulator() *Simulator {
	return &Simulator{ChunkSize: DefaultChunkSize, Delay: DefaultChunkDelay}
}

// Reply returns the full simulated answer to userText.
func (s *Simulator) Reply(userText string) string {
	return `You said: "` + userText + `". This is a simulated assistant response streaming chunk by chunk.`
}

// Chunks splits text into pieces of at most ChunkSize runes.
func (s *Simulator) Chunks(text string) []string {
	size := s.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	var chunks []string
	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[end:])
			end += w
			n++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}

// Simulate calls sink with each chunk of the reply to userText, waiting
// Delay before each one. It stops early when ctx is done or sink fails.
func (s *Simulator) Simulate(ctx context.Context, userText string, sink func(fragment string) error) error {
	for _, chunk := range s.Chunks(s.Reply(userText)) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Delay):
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink(chunk); err != nil {
			return err
		}
	}
	return nil
}
