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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/alexandrevilain/chatstream-go/provider"
)

// mockProvider is a testify double for Provider. When the first return
// value is a function with the Generate signature it is invoked, otherwise
// it is returned as the error.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, sink provider.EventSink) error {
	args := m.Called(ctx, prompt, sink)
	if fn, ok := args.Get(0).(func(context.Context, string, provider.EventSink) error); ok {
		return fn(ctx, prompt, sink)
	}
	return args.Error(0)
}

func emit(events ...provider.Event) func(context.Context, string, provider.EventSink) error {
	return func(_ context.Context, _ string, sink provider.EventSink) error {
		for _, ev := range events {
			if err := sink(ev); err != nil {
				return err
			}
		}
		return nil
	}
}

// sequentialIDGenerator returns a deterministic ID generator for testing.
func sequentialIDGenerator() IDGenerator {
	var mu sync.Mutex
	counters := map[string]int{}
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		counters[prefix]++
		return fmt.Sprintf("%s-%d", prefix, counters[prefix])
	}
}

// syncRecorder is a concurrency-safe http.ResponseWriter and http.Flusher.
// Writes fail once failAfter successful writes happened, when failAfter is
// positive.
type syncRecorder struct {
	mu        sync.Mutex
	header    http.Header
	status    int
	body      bytes.Buffer
	writes    int
	failAfter int
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{header: http.Header{}}
}

func (r *syncRecorder) Header() http.Header { return r.header }

func (r *syncRecorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter > 0 && r.writes >= r.failAfter {
		return 0, errors.New("broken pipe")
	}
	r.writes++
	return r.body.Write(p)
}

func (r *syncRecorder) Flush() {}

func (r *syncRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

type finishRecord struct {
	outcome Outcome
	err     error
}

func recordingHooks() (Hooks, *[]string, *[]finishRecord) {
	var (
		mu       sync.Mutex
		calls    []string
		finishes []finishRecord
	)
	return Hooks{
		OnStreamStart: func(_ context.Context, id string, _ StreamRequest) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "start:"+id)
		},
		OnFragment: func(_ context.Context, _ string, fragment string) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "fragment:"+fragment)
		},
		OnHeartbeat: func(_ context.Context, _ string) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "heartbeat")
		},
		OnFinish: func(_ context.Context, _ string, outcome Outcome, err error) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "finish:"+string(outcome))
			finishes = append(finishes, finishRecord{outcome: outcome, err: err})
		},
	}, &calls, &finishes
}

func TestBridge_Stream_VisitingHours(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	p := &mockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(emit(
		provider.TextDeltaEvent{Delta: "Vi"},
		provider.TextDeltaEvent{Delta: "siting hours are 9-5"},
		provider.StreamEndEvent{FinishReason: provider.FinishReasonStop},
	))

	hooks, calls, finishes := recordingHooks()
	bridge := NewBridge(p, WithHooks(hooks), WithIDGenerator(sequentialIDGenerator()))
	rec := newSyncRecorder()

	outcome := bridge.Stream(context.Background(), rec, StreamRequest{Prompt: "What are visiting hours?"})

	g.Expect(outcome).To(Equal(OutcomeCompleted))
	g.Expect(rec.status).To(Equal(http.StatusOK))
	g.Expect(rec.Header().Get("Content-Type")).To(Equal("text/event-stream"))
	g.Expect(rec.Header().Get("Cache-Control")).To(Equal("no-cache"))
	g.Expect(rec.Header().Get("Connection")).To(Equal("keep-alive"))
	g.Expect(rec.Header().Get("X-Accel-Buffering")).To(Equal("no"))
	g.Expect(rec.String()).To(Equal(
		"data: \"Vi\"\n\n" +
			"data: \"siting hours are 9-5\"\n\n" +
			"event: done\ndata: [DONE]\n\n",
	))
	g.Expect(*calls).To(Equal([]string{
		"start:stream-1",
		"fragment:Vi",
		"fragment:siting hours are 9-5",
		"finish:completed",
	}))
	g.Expect((*finishes)[0].err).ToNot(HaveOccurred())
	p.AssertExpectations(t)
}

func TestBridge_Stream_ComposesPrompt(t *testing.T) {
	tests := map[string]struct {
		options  []Option
		request  StreamRequest
		expected string
	}{
		"default system prompt": {
			request:  StreamRequest{Prompt: "hi"},
			expected: ComposePrompt("hi", DefaultSystemPrompt, ""),
		},
		"bridge system prompt": {
			options:  []Option{WithSystemPrompt("Be terse.")},
			request:  StreamRequest{Prompt: "hi", Context: "Open 9-5."},
			expected: "Be terse.\n\nContext:\nOpen 9-5.\n\nQuestion:\nhi\n\nAnswer:",
		},
		"request system prompt wins": {
			options:  []Option{WithSystemPrompt("Be terse.")},
			request:  StreamRequest{Prompt: "hi", System: "Be verbose."},
			expected: "Be verbose.\n\nContext:\n(no context provided)\n\nQuestion:\nhi\n\nAnswer:",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			p := &mockProvider{}
			p.On("Generate", mock.Anything, test.expected, mock.Anything).
				Return(emit(provider.StreamEndEvent{FinishReason: provider.FinishReasonStop}))

			bridge := NewBridge(p, test.options...)
			outcome := bridge.Stream(context.Background(), newSyncRecorder(), test.request)

			g.Expect(outcome).To(Equal(OutcomeCompleted))
			p.AssertExpectations(t)
		})
	}
}

func TestBridge_Stream_Failures(t *testing.T) {
	tests := map[string]struct {
		generate    func(context.Context, string, provider.EventSink) error
		expectedErr error
		errContains string
		body        string
	}{
		"provider error after a fragment": {
			generate: func(_ context.Context, _ string, sink provider.EventSink) error {
				_ = sink(provider.TextDeltaEvent{Delta: "par"})
				return errors.New("connection refused")
			},
			errContains: "connection refused",
			body:        "data: \"par\"\n\nevent: error\ndata: \"stream error\"\n\n",
		},
		"provider returns without end": {
			generate:    emit(provider.TextDeltaEvent{Delta: "a"}),
			expectedErr: ErrUnexpectedEnd,
			body:        "data: \"a\"\n\nevent: error\ndata: \"stream error\"\n\n",
		},
		"provider panics": {
			generate: func(context.Context, string, provider.EventSink) error {
				panic("boom")
			},
			errContains: "provider panic: boom",
			body:        "event: error\ndata: \"stream error\"\n\n",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			p := &mockProvider{}
			p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(test.generate)

			hooks, _, finishes := recordingHooks()
			bridge := NewBridge(p, WithHooks(hooks))
			rec := newSyncRecorder()

			outcome := bridge.Stream(context.Background(), rec, StreamRequest{Prompt: "hi"})

			g.Expect(outcome).To(Equal(OutcomeFailed))
			g.Expect(rec.String()).To(Equal(test.body))
			g.Expect(rec.String()).ToNot(ContainSubstring("event: done"))
			g.Expect(*finishes).To(HaveLen(1))
			if test.expectedErr != nil {
				g.Expect((*finishes)[0].err).To(MatchError(test.expectedErr))
			}
			if test.errContains != "" {
				g.Expect((*finishes)[0].err).To(MatchError(ContainSubstring(test.errContains)))
			}
		})
	}
}

func TestBridge_Stream_SkipsEmptyFragments(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	p := &mockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(emit(
		provider.TextDeltaEvent{Delta: ""},
		provider.TextDeltaEvent{Delta: "x"},
		provider.StreamEndEvent{},
	))

	rec := newSyncRecorder()
	outcome := NewBridge(p).Stream(context.Background(), rec, StreamRequest{Prompt: "hi"})

	g.Expect(outcome).To(Equal(OutcomeCompleted))
	g.Expect(rec.String()).To(Equal("data: \"x\"\n\nevent: done\ndata: [DONE]\n\n"))
}

func TestBridge_Stream_RejectsBlankPrompt(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	p := &mockProvider{}
	rec := newSyncRecorder()

	outcome := NewBridge(p).Stream(context.Background(), rec, StreamRequest{Prompt: "   "})

	g.Expect(outcome).To(Equal(OutcomeRejected))
	g.Expect(rec.status).To(Equal(http.StatusBadRequest))
	g.Expect(rec.String()).To(Equal("prompt required"))
	g.Expect(rec.Header().Get("Content-Type")).ToNot(Equal("text/event-stream"))
	p.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestBridge_Stream_HeartbeatWhileProviderIsSilent(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	upstreamClosed := make(chan struct{})
	p := &mockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ string, _ provider.EventSink) error {
			<-ctx.Done()
			close(upstreamClosed)
			return ctx.Err()
		})

	hooks, _, _ := recordingHooks()
	bridge := NewBridge(p, WithHeartbeatInterval(5*time.Millisecond), WithHooks(hooks))
	rec := newSyncRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	outcome := make(chan Outcome, 1)
	go func() {
		outcome <- bridge.Stream(ctx, rec, StreamRequest{Prompt: "hi"})
	}()

	g.Eventually(func() int {
		return strings.Count(rec.String(), ": ping\n\n")
	}).Should(BeNumerically(">=", 3))

	cancel()

	g.Eventually(outcome).Should(Receive(Equal(OutcomeFailed)))
	g.Eventually(upstreamClosed).Should(BeClosed())
	g.Expect(rec.String()).ToNot(ContainSubstring("event: done"))
	g.Expect(strings.ReplaceAll(rec.String(), ": ping\n\n", "")).To(BeEmpty())
}

func TestBridge_Stream_WriteFailureCancelsUpstream(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	sinkErr := make(chan error, 1)
	p := &mockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ string, sink provider.EventSink) error {
			for i := 0; ; i++ {
				if err := sink(provider.TextDeltaEvent{Delta: fmt.Sprintf("t%d", i)}); err != nil {
					sinkErr <- err
					return err
				}
			}
		})

	hooks, _, finishes := recordingHooks()
	rec := newSyncRecorder()
	rec.failAfter = 2

	outcome := NewBridge(p, WithHooks(hooks)).Stream(context.Background(), rec, StreamRequest{Prompt: "hi"})

	g.Expect(outcome).To(Equal(OutcomeFailed))
	g.Eventually(sinkErr).Should(Receive(MatchError(context.Canceled)))
	g.Expect(rec.String()).To(Equal("data: \"t0\"\n\ndata: \"t1\"\n\n"))
	g.Expect((*finishes)[0].err).To(MatchError(ContainSubstring("broken pipe")))
}

func TestBridge_Stream_TerminalState(t *testing.T) {
	tests := map[string]struct {
		generate       func(context.Context, string, provider.EventSink) error
		failAfter      int
		expectedState  string
		expectedBody   string
		expectedErrMsg string
	}{
		"completion": {
			generate: emit(
				provider.TextDeltaEvent{Delta: "a"},
				provider.StreamEndEvent{FinishReason: provider.FinishReasonStop},
			),
			expectedState: StateCompleted,
			expectedBody:  "data: \"a\"\n\nevent: done\ndata: [DONE]\n\n",
		},
		"provider failure": {
			generate: func(context.Context, string, provider.EventSink) error {
				return errors.New("connection refused")
			},
			expectedState:  StateFailed,
			expectedBody:   "event: error\ndata: \"stream error\"\n\n",
			expectedErrMsg: "connection refused",
		},
		"write failure": {
			generate: emit(
				provider.TextDeltaEvent{Delta: "a"},
				provider.TextDeltaEvent{Delta: "b"},
				provider.StreamEndEvent{FinishReason: provider.FinishReasonStop},
			),
			failAfter:      1,
			expectedState:  StateFailed,
			expectedBody:   "data: \"a\"\n\n",
			expectedErrMsg: "broken pipe",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			p := &mockProvider{}
			p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(test.generate)

			hooks, _, finishes := recordingHooks()
			rec := newSyncRecorder()
			rec.failAfter = test.failAfter

			s := NewBridge(p, WithHooks(hooks)).newStream(rec)
			outcome := s.run(context.Background(), rec, StreamRequest{Prompt: "hi"})

			g.Expect(s.state.Current()).To(Equal(test.expectedState))
			g.Expect(outcome).To(Equal(Outcome(test.expectedState)))
			g.Expect(rec.String()).To(Equal(test.expectedBody))
			g.Expect(*finishes).To(HaveLen(1))
			g.Expect((*finishes)[0].outcome).To(Equal(outcome))
			if test.expectedErrMsg != "" {
				g.Expect((*finishes)[0].err).To(MatchError(ContainSubstring(test.expectedErrMsg)))
			} else {
				g.Expect((*finishes)[0].err).ToNot(HaveOccurred())
			}

			// A terminal stream refuses further writes and keeps its state.
			g.Expect(s.write(s.enc.WritePing)).To(MatchError(errStreamClosed))
			g.Expect(s.fail(context.Background(), errors.New("late"))).To(Equal(outcome))
			g.Expect(rec.String()).To(Equal(test.expectedBody))
			g.Expect(*finishes).To(HaveLen(1))
		})
	}
}

func TestBridge_Complete(t *testing.T) {
	tests := map[string]struct {
		request     StreamRequest
		generate    func(context.Context, string, provider.EventSink) error
		expected    string
		expectedErr error
		errContains string
	}{
		"concatenates fragments": {
			request: StreamRequest{Prompt: "What are visiting hours?"},
			generate: emit(
				provider.TextDeltaEvent{Delta: "Vi"},
				provider.TextDeltaEvent{Delta: "siting hours are 9-5"},
				provider.StreamEndEvent{FinishReason: provider.FinishReasonStop},
			),
			expected: "Visiting hours are 9-5",
		},
		"empty response": {
			request:  StreamRequest{Prompt: "hi"},
			generate: emit(provider.StreamEndEvent{}),
			expected: "",
		},
		"missing end": {
			request:     StreamRequest{Prompt: "hi"},
			generate:    emit(provider.TextDeltaEvent{Delta: "a"}),
			expectedErr: ErrUnexpectedEnd,
		},
		"provider error": {
			request: StreamRequest{Prompt: "hi"},
			generate: func(context.Context, string, provider.EventSink) error {
				return errors.New("status 503")
			},
			errContains: "status 503",
		},
		"blank prompt": {
			request:     StreamRequest{},
			expectedErr: ErrPromptRequired,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			p := &mockProvider{}
			if test.generate != nil {
				p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(test.generate)
			}

			text, err := NewBridge(p).Complete(context.Background(), test.request)

			switch {
			case test.expectedErr != nil:
				g.Expect(err).To(MatchError(test.expectedErr))
			case test.errContains != "":
				g.Expect(err).To(MatchError(ContainSubstring(test.errContains)))
			default:
				g.Expect(err).ToNot(HaveOccurred())
				g.Expect(text).To(Equal(test.expected))
			}
			if test.generate == nil {
				p.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestNewBatchProvider(t *testing.T) {
	tests := map[string]struct {
		text     string
		err      error
		expected []string
	}{
		"whole text as one fragment": {
			text:     "Visiting hours are 9-5",
			expected: []string{"Visiting hours are 9-5"},
		},
		"empty text emits no fragment": {
			text: "",
		},
		"completer error": {
			err: errors.New("status 500"),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			c := &mockCompleter{}
			c.On("Complete", mock.Anything, "prompt").Return(test.text, test.err)

			var (
				fragments []string
				end       provider.StreamEndEvent
			)
			err := NewBatchProvider(c).Generate(context.Background(), "prompt", provider.Collect(&fragments, &end))

			if test.err != nil {
				g.Expect(err).To(MatchError(test.err))
				g.Expect(fragments).To(BeEmpty())
				return
			}
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(fragments).To(Equal(test.expected))
			g.Expect(end.FinishReason).To(Equal(provider.FinishReasonStop))
			c.AssertExpectations(t)
		})
	}
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}
