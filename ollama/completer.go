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
	"fmt"

	chatstream "github.com/alexandrevilain/chatstream-go"
)

// Interface compliance check.
var _ chatstream.Completer = (*Completer)(nil)

// Completer implements chatstream.Completer over the non-streaming
// generate API. Wrap it with chatstream.NewBatchProvider to serve it to a
// bridge.
type Completer struct {
	config
}

// NewCompleter creates a non-streaming Ollama completer.
func NewCompleter(opts ...Option) *Completer {
	return &Completer{config: newConfig(opts)}
}

// Complete returns the response field of a single generate call.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Response, nil
}
