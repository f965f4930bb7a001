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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alexandrevilain/chatstream-go/frame"

	chatstream "github.com/alexandrevilain/chatstream-go"
)

var (
	// ErrStreamFailed is returned when the SSE endpoint cannot be reached,
	// answers with a non-success status, sends an error record, or closes
	// the connection before the done record.
	ErrStreamFailed = errors.New("stream failed")

	// ErrChatFailed is returned when the JSON endpoint fails.
	ErrChatFailed = errors.New("chat request failed")
)

// NoReply is shown when the JSON endpoint answers with an empty text.
const NoReply = "(no reply)"

const (
	streamPath     = "/api/chat/stream"
	chatPath       = "/api/chat"
	readBufferSize = 4 << 10
)

// Consumer reads replies from a chatstream server.
type Consumer struct {
	BaseURL    string
	HTTPClient *http.Client
	// ReadTimeout aborts a stream when no bytes arrive for this long.
	// Zero disables the watchdog.
	ReadTimeout time.Duration
	Logger      *zap.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ConsumerOption {
	return func(c *Consumer) { c.HTTPClient = hc }
}

// WithReadTimeout enables the read watchdog.
func WithReadTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.ReadTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ConsumerOption {
	return func(c *Consumer) { c.Logger = logger }
}

// NewConsumer creates a consumer for the server at baseURL.
func NewConsumer(baseURL string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
		Logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Consume streams the reply to prompt into a new pending assistant message
// of session. Every data record is appended and rendered before the next
// one is read. On the done record the message is finished and Consume
// returns nil.
//
// When ctx is cancelled Consume returns ctx.Err() and makes no further
// renderer calls. Any other failure is reported as ErrStreamFailed; the
// pending message is abandoned in both cases.
func (c *Consumer) Consume(ctx context.Context, prompt string, session *Session, renderer Renderer) error {
	if err := session.Begin(); err != nil {
		return err
	}
	finished := false
	defer func() {
		if !finished {
			session.Abandon()
		}
	}()
	renderer.Render(session.Messages())

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	var watchdog *time.Timer
	if c.ReadTimeout > 0 {
		watchdog = time.AfterFunc(c.ReadTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer watchdog.Stop()
	}

	fail := func(err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if timedOut.Load() {
			return fmt.Errorf("%w: no data for %s", ErrStreamFailed, c.ReadTimeout)
		}
		return fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}

	resp, err := c.post(readCtx, streamPath, chatstream.StreamRequest{Prompt: prompt}, "text/event-stream")
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d", ErrStreamFailed, resp.StatusCode)
	}

	dec := &frame.RecordDecoder{}
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(c.ReadTimeout)
			}
			for _, f := range dec.Feed(buf[:n]) {
				if err := ctx.Err(); err != nil {
					return err
				}
				switch f.Kind {
				case frame.KindData:
					session.Append(f.Payload)
					renderer.Render(session.Messages())
					if err := ctx.Err(); err != nil {
						return err
					}
					renderer.Announce(f.Payload)
				case frame.KindDone:
					session.Finish()
					finished = true
					renderer.Render(session.Messages())
					return nil
				case frame.KindError:
					return fmt.Errorf("%w: %s", ErrStreamFailed, f.Payload)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return fail(errors.New("connection closed before done"))
		}
		if readErr != nil {
			return fail(readErr)
		}
	}
}

// Ask sends prompt to the non-streaming endpoint and returns the reply.
func (c *Consumer) Ask(ctx context.Context, prompt, conversationID, tenantID string) (string, error) {
	resp, err := c.post(ctx, chatPath, chatstream.StreamRequest{
		Prompt:         prompt,
		ConversationID: conversationID,
		TenantID:       tenantID,
	}, "application/json")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", ErrChatFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr chatstream.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return "", fmt.Errorf("%w: HTTP %d: %s", ErrChatFailed, resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("%w: HTTP %d", ErrChatFailed, resp.StatusCode)
	}

	var out chatstream.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrChatFailed, err)
	}
	if out.Text == "" {
		return NoReply, nil
	}
	return out.Text, nil
}

func (c *Consumer) post(ctx context.Context, path string, body chatstream.StreamRequest, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	c.logger().Debug("sending chat request", zap.String("path", path))
	return hc.Do(req)
}

func (c *Consumer) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
