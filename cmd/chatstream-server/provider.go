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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/alexandrevilain/chatstream-go/anthropic"
	"github.com/alexandrevilain/chatstream-go/gemini"
	"github.com/alexandrevilain/chatstream-go/internal/config"
	"github.com/alexandrevilain/chatstream-go/ollama"

	chatstream "github.com/alexandrevilain/chatstream-go"
	csopenai "github.com/alexandrevilain/chatstream-go/openai"
)

// newProvider builds the provider named in cfg.
func newProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (chatstream.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.NewStreamer(
			ollama.WithBaseURL(cfg.Ollama.URL),
			ollama.WithModel(cfg.Ollama.Model),
			ollama.WithLogger(logger.Named("ollama")),
		), nil

	case config.ProviderOllamaBatch:
		return chatstream.NewBatchProvider(ollama.NewCompleter(
			ollama.WithBaseURL(cfg.Ollama.URL),
			ollama.WithModel(cfg.Ollama.Model),
			ollama.WithLogger(logger.Named("ollama")),
		)), nil

	case config.ProviderAnthropic:
		if cfg.Anthropic.APIKey == "" {
			return nil, errors.New("anthropic provider requires anthropic.api_key")
		}
		return chatstream.NewBatchProvider(anthropic.New(cfg.Anthropic.APIKey,
			anthropic.WithBaseURL(cfg.Anthropic.BaseURL),
			anthropic.WithModel(cfg.Anthropic.Model),
			anthropic.WithMaxTokens(cfg.Anthropic.MaxTokens),
		)), nil

	case config.ProviderOpenAI:
		var opts []option.RequestOption
		if cfg.OpenAI.APIKey != "" {
			opts = append(opts, option.WithAPIKey(cfg.OpenAI.APIKey))
		}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		return csopenai.NewProvider(cfg.OpenAI.Model, opts...), nil

	case config.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("gemini provider requires gemini.api_key")
		}
		g, err := gemini.New(ctx, cfg.Gemini.APIKey, gemini.WithModel(cfg.Gemini.Model))
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return g, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
