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

// Package openai streams chat completions from the OpenAI API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/alexandrevilain/chatstream-go/provider"

	chatstream "github.com/alexandrevilain/chatstream-go"
)

// Interface compliance check.
var _ chatstream.Provider = (*Provider)(nil)

// DefaultModel is used when no model is given.
const DefaultModel = "gpt-4o-mini"

// Provider implements chatstream.Provider for OpenAI.
type Provider struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewProvider creates a new OpenAI provider for model. Request options are
// passed to the OpenAI client; the API key is read from OPENAI_API_KEY
// unless option.WithAPIKey is given.
func NewProvider(model string, opts ...option.RequestOption) *Provider {
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: openai.NewClient(opts...), model: model}
}

// WithMaxTokens caps the length of each completion.
func (p *Provider) WithMaxTokens(n int64) *Provider {
	p.maxTokens = n
	return p
}

// Generate implements chatstream.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string, sink provider.EventSink) error {
	stream := p.client.Chat.Completions.NewStreaming(ctx, newParams(p.model, prompt, p.maxTokens))
	defer func() {
		_ = stream.Close()
	}()

	var usage *provider.Usage
	finishReason := provider.FinishReasonStop

	for stream.Next() {
		chunk := stream.Current()

		// Usage arrives in a final chunk with no choices.
		if chunk.Usage.TotalTokens > 0 {
			usage = &provider.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if err := sink(provider.TextDeltaEvent{Delta: choice.Delta.Content}); err != nil {
				return err
			}
		}
		if choice.FinishReason != "" {
			finishReason = mapFinishReason(choice.FinishReason)
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}

	return sink(provider.StreamEndEvent{
		FinishReason: finishReason,
		Usage:        usage,
	})
}
