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
	"context"

	"github.com/alexandrevilain/chatstream-go/provider"
)

// Provider is implemented by text generation backends.
//
// Generate pushes provider.TextDeltaEvent values to the sink as soon as they
// arrive upstream and finishes with exactly one provider.StreamEndEvent, or
// returns an error. When the sink returns an error the provider must stop,
// close its upstream connection and return that error. A call to Generate
// serves a single request and is never restarted.
type Provider interface {
	Generate(ctx context.Context, prompt string, sink provider.EventSink) error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, prompt string, sink provider.EventSink) error

// Generate implements Provider.
func (f ProviderFunc) Generate(ctx context.Context, prompt string, sink provider.EventSink) error {
	return f(ctx, prompt, sink)
}

// Completer is implemented by backends that only return a finished response.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewBatchProvider turns a Completer into a Provider that emits the whole
// response as a single fragment followed by the end of the stream. An empty
// response produces no fragment.
func NewBatchProvider(c Completer) Provider {
	return &batchProvider{completer: c}
}

type batchProvider struct {
	completer Completer
}

func (b *batchProvider) Generate(ctx context.Context, prompt string, sink provider.EventSink) error {
	text, err := b.completer.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	if text != "" {
		if err := sink(provider.TextDeltaEvent{Delta: text}); err != nil {
			return err
		}
	}
	return sink(provider.StreamEndEvent{FinishReason: provider.FinishReasonStop})
}
