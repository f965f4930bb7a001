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

// Package client consumes the chat stream from the widget side: it reads
// the SSE endpoint, keeps the in-memory conversation and falls back to a
// simulated reply when the backend is unavailable.
package client

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrBusy is returned when a message is sent while a reply is pending.
var ErrBusy = errors.New("a reply is already in progress")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation.
type Message struct {
	Role Role
	Text string
}

// Session is the in-memory conversation. At most one assistant message is
// pending at a time; it stays mutable until Finish or Abandon and becomes
// part of the history afterwards.
type Session struct {
	mu       sync.Mutex
	messages []Message
	pending  *Message
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// AddUser appends a user message.
func (s *Session) AddUser(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: RoleUser, Text: text})
}

// Begin opens a pending assistant message.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return ErrBusy
	}
	s.pending = &Message{Role: RoleAssistant}
	return nil
}

// Append adds text to the pending assistant message. It is a no-op when no
// message is pending.
func (s *Session) Append(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Text += text
	}
}

// Finish moves the pending assistant message into the history.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return
	}
	s.messages = append(s.messages, *s.pending)
	s.pending = nil
}

// Abandon closes the pending assistant message after a failure. Text
// received so far is kept; an empty message is dropped.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return
	}
	if s.pending.Text != "" {
		s.messages = append(s.messages, *s.pending)
	}
	s.pending = nil
}

// Pending reports whether an assistant message is in progress.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Messages returns a snapshot of the conversation, with the pending
// assistant message last.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages), len(s.messages)+1)
	copy(out, s.messages)
	if s.pending != nil {
		out = append(out, *s.pending)
	}
	return out
}

// NewConversationID returns a random conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}
