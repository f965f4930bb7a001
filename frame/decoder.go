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

package frame

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultErrorMessage is used when an error record carries no message.
const DefaultErrorMessage = "stream error"

// LineDecoder splits a newline-delimited JSON body into JSON values.
//
// Blank lines and lines that are not valid JSON are dropped. OnDrop, when
// set, is called with every dropped non-blank line.
type LineDecoder struct {
	OnDrop func(line []byte)

	buf []byte
}

// Feed appends p to the pending input and returns every complete line that
// holds a valid JSON value. The returned values do not alias p.
func (d *LineDecoder) Feed(p []byte) []json.RawMessage {
	d.buf = append(d.buf, p...)

	var out []json.RawMessage
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		if v, ok := d.accept(d.buf[:i]); ok {
			out = append(out, v)
		}
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Flush returns the unterminated tail if it holds a valid JSON value and
// resets the decoder.
func (d *LineDecoder) Flush() (json.RawMessage, bool) {
	tail := d.buf
	d.buf = nil
	return d.accept(tail)
}

func (d *LineDecoder) accept(line []byte) (json.RawMessage, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	if !json.Valid(line) {
		if d.OnDrop != nil {
			d.OnDrop(bytes.Clone(line))
		}
		return nil, false
	}
	return json.RawMessage(bytes.Clone(line)), true
}

// RecordDecoder splits a Server-Sent Events body into frames.
//
// Records are separated by a blank line. Carriage returns are discarded so
// that CRLF streams decode like LF streams.
type RecordDecoder struct {
	buf []byte
}

// Feed appends p to the pending input and returns the frames of every
// complete record, in order.
func (d *RecordDecoder) Feed(p []byte) []Frame {
	for _, c := range p {
		if c != '\r' {
			d.buf = append(d.buf, c)
		}
	}

	var out []Frame
	for {
		i := bytes.Index(d.buf, []byte("\n\n"))
		if i < 0 {
			break
		}
		record := strings.TrimSpace(string(d.buf[:i]))
		d.buf = d.buf[i+2:]
		if record == "" {
			continue
		}
		out = append(out, classify(record))
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Pending reports whether an incomplete record is buffered.
func (d *RecordDecoder) Pending() bool {
	return len(bytes.TrimSpace(d.buf)) > 0
}

func classify(record string) Frame {
	lines := strings.Split(record, "\n")
	first := lines[0]

	switch {
	case strings.HasPrefix(first, "event:"):
		name := strings.TrimSpace(strings.TrimPrefix(first, "event:"))
		switch name {
		case "done":
			return Done()
		case "error":
			data, ok := dataOf(lines[1:])
			if !ok || data == "" {
				return Error(DefaultErrorMessage)
			}
			msg := unquote(data)
			if msg == "" {
				msg = DefaultErrorMessage
			}
			return Error(msg)
		default:
			return Comment()
		}
	case strings.HasPrefix(first, "data:"):
		data, _ := dataOf(lines)
		return Data(unquote(data))
	default:
		return Comment()
	}
}

// dataOf joins the values of the data lines among lines.
func dataOf(lines []string) (string, bool) {
	var (
		parts []string
		found bool
	)
	for _, line := range lines {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		found = true
		parts = append(parts, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	return strings.Join(parts, "\n"), found
}

// unquote decodes payload as a JSON string and falls back to the raw
// payload when it is not one.
func unquote(payload string) string {
	var s string
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return payload
	}
	return s
}
