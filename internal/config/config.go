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

// Package config loads the server settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted in the provider setting.
const (
	ProviderOllama      = "ollama"
	ProviderOllamaBatch = "ollama-batch"
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CHATSTREAM"

type OllamaConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Config holds the server settings.
type Config struct {
	Addr            string          `mapstructure:"addr"`
	AllowedOrigin   string          `mapstructure:"allowed_origin"`
	Debug           bool            `mapstructure:"debug"`
	Heartbeat       time.Duration   `mapstructure:"heartbeat"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	SystemPrompt    string          `mapstructure:"system_prompt"`
	Provider        string          `mapstructure:"provider"`
	Ollama          OllamaConfig    `mapstructure:"ollama"`
	Anthropic       AnthropicConfig `mapstructure:"anthropic"`
	OpenAI          OpenAIConfig    `mapstructure:"openai"`
	Gemini          GeminiConfig    `mapstructure:"gemini"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8787")
	v.SetDefault("allowed_origin", "http://localhost:5173")
	v.SetDefault("debug", false)
	v.SetDefault("heartbeat", "15s")
	v.SetDefault("shutdown_timeout", "5s")
	v.SetDefault("system_prompt", "")
	v.SetDefault("provider", ProviderOllama)
	v.SetDefault("ollama.url", "http://127.0.0.1:11434")
	v.SetDefault("ollama.model", "llama3.1:8b")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.model", "claude-3-haiku-20240307")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
}

// bindLegacyEnv keeps the unprefixed variables of the widget host
// (PORT, PROVIDER, ...) working next to the prefixed ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"addr":              {EnvPrefix + "_ADDR", "PORT"},
		"provider":          {EnvPrefix + "_PROVIDER", "PROVIDER"},
		"ollama.model":      {EnvPrefix + "_OLLAMA_MODEL", "OLLAMA_MODEL"},
		"anthropic.api_key": {EnvPrefix + "_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
		"openai.api_key":    {EnvPrefix + "_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"gemini.api_key":    {EnvPrefix + "_GEMINI_API_KEY", "GEMINI_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads the settings. When path is empty, chatstream.yaml is looked up
// in the working directory and skipped if absent. Environment variables
// prefixed with CHATSTREAM_ override the file, with dots in keys replaced by
// underscores (CHATSTREAM_OLLAMA_URL).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("chatstream")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// PORT carries a bare port number.
	if cfg.Addr != "" && !strings.Contains(cfg.Addr, ":") {
		cfg.Addr = ":" + cfg.Addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOllama, ProviderOllamaBatch, ProviderAnthropic, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive, got %s", c.Heartbeat)
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}
