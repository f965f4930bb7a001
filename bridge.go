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
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/alexandrevilain/chatstream-go/frame"
	"github.com/alexandrevilain/chatstream-go/provider"
)

// Stream states.
const (
	StateIdle      = "idle"
	StateStreaming = "streaming"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

const (
	eventStart    = "start"
	eventComplete = "complete"
	eventFail     = "fail"
)

// Bridge relays a Provider to HTTP clients as a Server-Sent Events stream.
// A Bridge is safe for concurrent use; every request gets its own state.
type Bridge struct {
	provider     Provider
	heartbeat    time.Duration
	logger       *zap.Logger
	hooks        Hooks
	idGenerator  IDGenerator
	systemPrompt string
}

// NewBridge creates a bridge serving p.
func NewBridge(p Provider, opts ...Option) *Bridge {
	b := &Bridge{
		provider:    p,
		heartbeat:   DefaultHeartbeatInterval,
		logger:      zap.NewNop(),
		idGenerator: DefaultIDGenerator,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stream serves req on w until the provider finishes, fails, or the client
// goes away. It never panics and always leaves the stream in a terminal
// state. A blank prompt is rejected with a plain 400 before any SSE framing
// and before the provider is contacted.
func (b *Bridge) Stream(ctx context.Context, w http.ResponseWriter, req StreamRequest) Outcome {
	if err := req.Validate(); err != nil {
		reject(w, err)
		return OutcomeRejected
	}

	return b.newStream(w).run(ctx, w, req)
}

// Complete runs the provider to the end and returns the concatenated
// fragments.
func (b *Bridge) Complete(ctx context.Context, req StreamRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var (
		text  strings.Builder
		ended bool
	)
	err := b.generate(ctx, b.compose(req), func(event provider.Event) error {
		switch e := event.(type) {
		case provider.TextDeltaEvent:
			text.WriteString(e.Delta)
		case provider.StreamEndEvent:
			ended = true
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !ended {
		return "", ErrUnexpectedEnd
	}
	return text.String(), nil
}

// reject answers an invalid request with a plain-text 400.
func reject(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = io.WriteString(w, err.Error())
}

func (b *Bridge) compose(req StreamRequest) string {
	system := req.System
	if strings.TrimSpace(system) == "" {
		system = b.systemPrompt
	}
	return ComposePrompt(req.Prompt, system, req.Context)
}

// generate runs the provider and turns a panic into an error.
func (b *Bridge) generate(ctx context.Context, prompt string, sink provider.EventSink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return b.provider.Generate(ctx, prompt, sink)
}

type stream struct {
	bridge *Bridge
	id     string
	logger *zap.Logger
	state  *fsm.FSM
	enc    *frame.Encoder
}

func (b *Bridge) newStream(w io.Writer) *stream {
	id := b.idGenerator("stream")
	s := &stream{
		bridge: b,
		id:     id,
		logger: b.logger.With(zap.String("stream_id", id)),
		enc:    frame.NewEncoder(w),
	}
	s.state = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateStreaming},
			{Name: eventComplete, Src: []string{StateStreaming}, Dst: StateCompleted},
			{Name: eventFail, Src: []string{StateIdle, StateStreaming}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Debug("stream state changed", zap.String("from", e.Src), zap.String("to", e.Dst))
			},
			"enter_" + StateCompleted: func(ctx context.Context, _ *fsm.Event) {
				s.bridge.hooks.finish(ctx, s.id, OutcomeCompleted, nil)
			},
			"enter_" + StateFailed: func(ctx context.Context, e *fsm.Event) {
				var err error
				if len(e.Args) > 0 {
					err, _ = e.Args[0].(error)
				}
				s.bridge.hooks.finish(ctx, s.id, OutcomeFailed, err)
			},
		},
	)
	return s
}

func (s *stream) run(ctx context.Context, w http.ResponseWriter, req StreamRequest) Outcome {
	s.transition(ctx, eventStart)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	s.enc.Flush()

	s.logger.Debug("stream started",
		zap.String("conversation_id", req.ConversationID),
		zap.String("tenant_id", req.TenantID),
	)
	s.bridge.hooks.streamStart(ctx, s.id, req)

	upstreamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan provider.Event)
	finished := make(chan error, 1)
	go func() {
		finished <- s.bridge.generate(upstreamCtx, s.bridge.compose(req), func(event provider.Event) error {
			select {
			case events <- event:
				return nil
			case <-upstreamCtx.Done():
				return upstreamCtx.Err()
			}
		})
	}()

	ticker := time.NewTicker(s.bridge.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			switch e := event.(type) {
			case provider.TextDeltaEvent:
				if e.Delta == "" {
					continue
				}
				if err := s.write(func() error { return s.enc.WriteData(e.Delta) }); err != nil {
					ticker.Stop()
					cancel()
					return s.abort(ctx, err)
				}
				s.bridge.hooks.fragment(ctx, s.id, e.Delta)
			case provider.StreamEndEvent:
				ticker.Stop()
				cancel()
				if err := s.write(s.enc.WriteDone); err != nil {
					s.logger.Debug("client went away before done", zap.Error(err))
					return s.fail(ctx, err)
				}
				return s.complete(ctx, e)
			}

		case err := <-finished:
			ticker.Stop()
			if ctx.Err() != nil {
				return s.fail(ctx, ctx.Err())
			}
			if err == nil {
				err = ErrUnexpectedEnd
			}
			s.logger.Warn("provider failed", zap.Error(err))
			if werr := s.write(func() error { return s.enc.WriteError(streamErrorMessage) }); werr != nil {
				s.logger.Debug("write error record", zap.Error(werr))
			}
			return s.fail(ctx, err)

		case <-ticker.C:
			if err := s.write(s.enc.WritePing); err != nil {
				ticker.Stop()
				cancel()
				return s.abort(ctx, err)
			}
			s.bridge.hooks.heartbeat(ctx, s.id)

		case <-ctx.Done():
			ticker.Stop()
			cancel()
			s.logger.Debug("client disconnected", zap.Error(ctx.Err()))
			return s.fail(ctx, ctx.Err())
		}
	}
}

// write runs fn only while the stream is open.
func (s *stream) write(fn func() error) error {
	if !s.state.Is(StateStreaming) {
		return errStreamClosed
	}
	return fn()
}

// abort ends the stream after a failed write. The upstream has already been
// cancelled; the error record is best-effort.
func (s *stream) abort(ctx context.Context, err error) Outcome {
	s.logger.Debug("downstream write failed", zap.Error(err))
	_ = s.write(func() error { return s.enc.WriteError(streamErrorMessage) })
	return s.fail(ctx, err)
}

func (s *stream) complete(ctx context.Context, end provider.StreamEndEvent) Outcome {
	fields := []zap.Field{zap.String("finish_reason", string(end.FinishReason))}
	if end.Usage != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", end.Usage.PromptTokens),
			zap.Int("completion_tokens", end.Usage.CompletionTokens),
		)
	}
	s.logger.Debug("stream completed", fields...)
	s.transition(ctx, eventComplete)
	return Outcome(s.state.Current())
}

// fail moves the stream to the failed state. A stream that already reached
// a terminal state keeps it and the finish hook is not fired again.
func (s *stream) fail(ctx context.Context, err error) Outcome {
	s.transition(ctx, eventFail, err)
	return Outcome(s.state.Current())
}

func (s *stream) transition(ctx context.Context, event string, args ...any) {
	if err := s.state.Event(context.WithoutCancel(ctx), event, args...); err != nil {
		s.logger.Error("invalid stream transition",
			zap.String("event", event),
			zap.String("state", s.state.Current()),
			zap.Error(err),
		)
	}
}
