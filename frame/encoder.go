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
	"fmt"
	"io"
	"net/http"
)

// Encoder writes frames in the Server-Sent Events format and flushes
// after each record when the underlying writer supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// WriteData writes a data record carrying text.
func (e *Encoder) WriteData(text string) error { return e.Write(Data(text)) }

// WriteDone writes the end of stream record.
func (e *Encoder) WriteDone() error { return e.Write(Done()) }

// WriteError writes an error record carrying msg.
func (e *Encoder) WriteError(msg string) error { return e.Write(Error(msg)) }

// WritePing writes a keep-alive comment.
func (e *Encoder) WritePing() error { return e.Write(Comment()) }

// Write encodes f and flushes it.
func (e *Encoder) Write(f Frame) error {
	record, err := Encode(f)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(record); err != nil {
		return fmt.Errorf("write %s record: %w", f.Kind, err)
	}
	e.Flush()
	return nil
}

// Flush pushes buffered bytes to the client.
func (e *Encoder) Flush() {
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

// Encode returns the wire form of f.
func Encode(f Frame) ([]byte, error) {
	switch f.Kind {
	case KindData:
		payload, err := quote(f.Payload)
		if err != nil {
			return nil, err
		}
		return []byte("data: " + payload + "\n\n"), nil
	case KindDone:
		return []byte("event: done\ndata: [DONE]\n\n"), nil
	case KindError:
		msg := f.Payload
		if msg == "" {
			msg = DefaultErrorMessage
		}
		payload, err := quote(msg)
		if err != nil {
			return nil, err
		}
		return []byte("event: error\ndata: " + payload + "\n\n"), nil
	case KindComment:
		return []byte(": ping\n\n"), nil
	default:
		return nil, fmt.Errorf("unknown frame kind %d", f.Kind)
	}
}

// quote renders s as a JSON string without HTML escaping, so that a
// payload never contains a raw newline.
func quote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
