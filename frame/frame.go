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

// Package frame converts between raw stream bytes and discrete frames.
//
// Two decoders are provided. LineDecoder splits newline-delimited JSON
// bodies such as the ones produced by Ollama. RecordDecoder splits
// Server-Sent Events records and classifies them. Both keep the
// unterminated tail of the input between calls so that the output does
// not depend on how the bytes were chunked by the network.
package frame

// Kind identifies the type of a Server-Sent Events record.
type Kind int

const (
	// KindData carries a text fragment.
	KindData Kind = iota
	// KindDone marks the successful end of a stream.
	KindDone
	// KindError marks the failed end of a stream.
	KindError
	// KindComment is a keep-alive or an unrecognized record. Consumers ignore it.
	KindComment
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Frame is a single decoded record.
type Frame struct {
	Kind Kind
	// Payload is the fragment text for KindData and the message for
	// KindError. It is empty for the other kinds.
	Payload string
}

// Data returns a data frame carrying text.
func Data(text string) Frame { return Frame{Kind: KindData, Payload: text} }

// Done returns the end of stream frame.
func Done() Frame { return Frame{Kind: KindDone} }

// Error returns an error frame carrying msg.
func Error(msg string) Frame { return Frame{Kind: KindError, Payload: msg} }

// Comment returns a keep-alive frame.
func Comment() Frame { return Frame{Kind: KindComment} }
