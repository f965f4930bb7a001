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

// Package gemini streams generated text from the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/alexandrevilain/chatstream-go/provider"

	chatstream "github.com/alexandrevilain/chatstream-go"
)

// Interface compliance check.
var _ chatstream.Provider = (*Provider)(nil)

// DefaultModel is used when no model is given.
const DefaultModel = "gemini-2.5-flash"

// ContentStreamer is the part of genai.Models used by the provider.
type ContentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Provider implements chatstream.Provider for Gemini.
type Provider struct {
	models ContentStreamer
	model  string
	config *genai.GenerateContentConfig
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithMaxOutputTokens caps the length of each response.
func WithMaxOutputTokens(n int32) Option {
	return func(p *Provider) { p.config.MaxOutputTokens = n }
}

// New creates a Gemini provider using the Gemini API backend.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return NewWithStreamer(gc.Models, opts...), nil
}

// NewWithStreamer creates a provider on top of an existing streamer.
func NewWithStreamer(models ContentStreamer, opts ...Option) *Provider {
	p := &Provider{
		models: models,
		model:  DefaultModel,
		config: &genai.GenerateContentConfig{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Generate implements chatstream.Provider. Leaving the loop early stops the
// underlying iterator, which closes the HTTP response.
func (p *Provider) Generate(ctx context.Context, prompt string, sink provider.EventSink) error {
	var (
		usage        *provider.Usage
		finishReason = provider.FinishReasonStop
	)

	for resp, err := range p.models.GenerateContentStream(ctx, p.model, genai.Text(prompt), p.config) {
		if err != nil {
			return fmt.Errorf("gemini: %w", err)
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			usage = &provider.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		candidate := resp.Candidates[0]

		if text := candidateText(candidate); text != "" {
			if err := sink(provider.TextDeltaEvent{Delta: text}); err != nil {
				return err
			}
		}
		if candidate.FinishReason != "" {
			finishReason = mapFinishReason(candidate.FinishReason)
		}
	}

	return sink(provider.StreamEndEvent{
		FinishReason: finishReason,
		Usage:        usage,
	})
}

// candidateText joins the visible text parts of c. Thought parts are skipped.
func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var text string
	for _, part := range c.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text += part.Text
	}
	return text
}

func mapFinishReason(reason genai.FinishReason) provider.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return provider.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return provider.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return provider.FinishReasonContentFilter
	default:
		return provider.FinishReasonUnknown
	}
}
