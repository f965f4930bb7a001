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

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/alexandrevilain/chatstream-go/frame"
	"github.com/alexandrevilain/chatstream-go/provider"

	chatstream "github.com/alexandrevilain/chatstream-go"
)

// Interface compliance check.
var _ chatstream.Provider = (*Streamer)(nil)

const readBufferSize = 4 << 10

// Streamer implements chatstream.Provider over the streaming generate API.
type Streamer struct {
	config
}

// NewStreamer creates a streaming Ollama provider.
func NewStreamer(opts ...Option) *Streamer {
	return &Streamer{config: newConfig(opts)}
}

// Generate implements chatstream.Provider. Fragments are forwarded as soon
// as their line is complete; the upstream body is closed as soon as the
// final line has been seen.
func (s *Streamer) Generate(ctx context.Context, prompt string, sink provider.EventSink) error {
	resp, err := s.post(ctx, prompt, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := &frame.LineDecoder{
		OnDrop: func(line []byte) {
			s.logger.Debug("dropping malformed line", zap.ByteString("line", line))
		},
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				done, err := s.handleLine(line, sink)
				if err != nil || done {
					return err
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("ollama: read stream: %w", readErr)
		}
	}

	if line, ok := dec.Flush(); ok {
		done, err := s.handleLine(line, sink)
		if err != nil || done {
			return err
		}
	}
	return fmt.Errorf("ollama: %w", chatstream.ErrUnexpectedEnd)
}

// handleLine forwards one decoded line and reports whether it was the last.
func (s *Streamer) handleLine(line json.RawMessage, sink provider.EventSink) (bool, error) {
	var chunk generateResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		s.logger.Debug("dropping undecodable line", zap.ByteString("line", line), zap.Error(err))
		return false, nil
	}
	if chunk.Error != "" {
		return false, fmt.Errorf("ollama: %s", chunk.Error)
	}

	if chunk.Response != "" {
		if err := sink(provider.TextDeltaEvent{Delta: chunk.Response}); err != nil {
			return false, err
		}
	}
	if !chunk.Done {
		return false, nil
	}

	end := provider.StreamEndEvent{FinishReason: mapDoneReason(chunk.DoneReason)}
	if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
		end.Usage = &provider.Usage{
			PromptTokens:     chunk.PromptEvalCount,
			CompletionTokens: chunk.EvalCount,
			TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
		}
	}
	return true, sink(end)
}

func mapDoneReason(reason string) provider.FinishReason {
	switch reason {
	case "stop", "":
		return provider.FinishReasonStop
	case "length":
		return provider.FinishReasonLength
	default:
		return provider.FinishReasonUnknown
	}
}
