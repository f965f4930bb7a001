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
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/alexandrevilain/chatstream-go/client"
)

// terminalRenderer prints the conversation incrementally. Only assistant
// text is written since the user's input is already on screen.
type terminalRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	prefix  *color.Color
	spinner *spinner.Spinner
	shown   []int
	open    bool
}

func newTerminalRenderer(out, status io.Writer) *terminalRenderer {
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(status))
	_ = s.Color("cyan")
	return &terminalRenderer{
		out:     out,
		prefix:  color.New(color.FgCyan, color.Bold),
		spinner: s,
	}
}

func (r *terminalRenderer) Render(messages []client.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// An abandoned empty reply is dropped from the session.
	if len(messages) < len(r.shown) {
		r.shown = r.shown[:len(messages)]
	}

	for i, m := range messages {
		if i >= len(r.shown) {
			r.shown = append(r.shown, 0)
			if m.Role == client.RoleUser {
				r.shown[i] = len(m.Text)
				continue
			}
		}
		if m.Role != client.RoleAssistant || len(m.Text) <= r.shown[i] {
			continue
		}
		if r.spinner.Active() {
			r.spinner.Stop()
		}
		if r.shown[i] == 0 {
			r.prefix.Fprint(r.out, "  assistant → ")
			r.open = true
		}
		fmt.Fprint(r.out, m.Text[r.shown[i]:])
		r.shown[i] = len(m.Text)
	}
}

// Announce is a no-op: the fragment is already printed by Render.
func (r *terminalRenderer) Announce(string) {}

func (r *terminalRenderer) SetStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if status == "" {
		r.spinner.Stop()
		return
	}
	r.spinner.Suffix = "  " + status
	r.spinner.Start()
}

// EndTurn terminates the reply line, if one was printed.
func (r *terminalRenderer) EndTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.open {
		fmt.Fprint(r.out, "\n\n")
		r.open = false
	}
}
