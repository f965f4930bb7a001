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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	. "github.com/onsi/gomega"
)

func newTestChat(baseURL string, renderer Renderer) *Chat {
	c := NewChat(NewConsumer(baseURL), renderer)
	c.Simulator = &Simulator{ChunkSize: DefaultChunkSize, Delay: time.Millisecond}
	return c
}

func TestChat_Send_FallsBackWhenServerIsDown(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	renderer := &recordingRenderer{}
	chat := newTestChat(url, renderer)

	g.Expect(chat.Send(context.Background(), "  What are visiting hours? ")).To(Succeed())

	reply := chat.Simulator.Reply("What are visiting hours?")
	g.Expect(chat.Session.Messages()).To(Equal([]Message{
		{Role: RoleUser, Text: "What are visiting hours?"},
		{Role: RoleAssistant, Text: reply},
	}))
	g.Expect(strings.Join(renderer.announced, "")).To(Equal(reply))
	for _, chunk := range renderer.announced {
		g.Expect(utf8.RuneCountInString(chunk)).To(BeNumerically("<=", DefaultChunkSize))
	}
	g.Expect(renderer.statuses).To(Equal([]string{StatusThinking, ""}))
}

func TestChat_Send_FallsBackAfterErrorRecord(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	srv := sseServer(t, http.StatusOK, []string{
		"data: \"par\"\n\n",
		"event: error\ndata: \"stream error\"\n\n",
	})
	chat := newTestChat(srv.URL, &recordingRenderer{})

	g.Expect(chat.Send(context.Background(), "hi")).To(Succeed())

	g.Expect(chat.Session.Messages()).To(Equal([]Message{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleAssistant, Text: "par"},
		{Role: RoleAssistant, Text: chat.Simulator.Reply("hi")},
	}))
}

func TestChat_Send_Stream(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	srv := sseServer(t, http.StatusOK, []string{
		"data: \"Vi\"\n\n",
		": ping\n\n",
		"data: \"siting hours are 9-5\"\n\n",
		"event: done\ndata: [DONE]\n\n",
	})
	renderer := &recordingRenderer{}
	chat := newTestChat(srv.URL, renderer)

	g.Expect(chat.Send(context.Background(), "What are visiting hours?")).To(Succeed())

	g.Expect(chat.Session.Messages()).To(Equal([]Message{
		{Role: RoleUser, Text: "What are visiting hours?"},
		{Role: RoleAssistant, Text: "Visiting hours are 9-5"},
	}))
	g.Expect(renderer.announced).To(Equal([]string{"Vi", "siting hours are 9-5"}))
	g.Expect(renderer.statuses).To(Equal([]string{StatusThinking, ""}))
	g.Expect(renderer.renders[len(renderer.renders)-1]).To(Equal(chat.Session.Messages()))
}

func TestChat_Send_JSONTransport(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"Visiting hours are 9-5"}`)
	}))
	defer srv.Close()

	renderer := &recordingRenderer{}
	chat := newTestChat(srv.URL, renderer)
	chat.Transport = TransportJSON

	g.Expect(chat.Send(context.Background(), "What are visiting hours?")).To(Succeed())

	g.Expect(chat.Session.Messages()).To(Equal([]Message{
		{Role: RoleUser, Text: "What are visiting hours?"},
		{Role: RoleAssistant, Text: "Visiting hours are 9-5"},
	}))
	g.Expect(renderer.announced).To(Equal([]string{"Visiting hours are 9-5"}))
}

func TestChat_Send_BlankInput(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	renderer := &recordingRenderer{}
	chat := newTestChat("http://127.0.0.1:0", renderer)

	g.Expect(chat.Send(context.Background(), " \n\t")).To(Succeed())
	g.Expect(chat.Session.Messages()).To(BeEmpty())
	g.Expect(renderer.renderCount()).To(BeZero())
	g.Expect(renderer.statuses).To(BeEmpty())
}

func TestChat_Send_Busy(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, "data: \"ok\"\n\nevent: done\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	chat := newTestChat(srv.URL, &recordingRenderer{})

	first := make(chan error, 1)
	go func() {
		first <- chat.Send(context.Background(), "first")
	}()

	g.Eventually(chat.Session.Pending).Should(BeTrue())
	g.Expect(chat.Send(context.Background(), "second")).To(MatchError(ErrBusy))

	close(release)
	g.Eventually(first).Should(Receive(BeNil()))
	g.Expect(chat.Session.Messages()).To(Equal([]Message{
		{Role: RoleUser, Text: "first"},
		{Role: RoleAssistant, Text: "ok"},
	}))
}

func TestChat_Send_CancellationSkipsFallback(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	renderer := &recordingRenderer{}
	chat := newTestChat(srv.URL, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- chat.Send(ctx, "hi")
	}()

	g.Eventually(chat.Session.Pending).Should(BeTrue())
	cancel()

	g.Eventually(done).Should(Receive(MatchError(context.Canceled)))
	g.Expect(chat.Session.Messages()).To(Equal([]Message{{Role: RoleUser, Text: "hi"}}))
	g.Expect(renderer.announced).To(BeEmpty())
}
