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

import "errors"

var (
	// ErrPromptRequired is returned when a request carries a blank prompt.
	ErrPromptRequired = errors.New("prompt required")

	// ErrUnexpectedEnd is returned when a provider finishes without
	// reporting the end of the stream.
	ErrUnexpectedEnd = errors.New("unexpected end of stream")

	errStreamClosed = errors.New("stream closed")
)

// Messages sent to clients. Upstream details stay in the server logs.
const (
	streamErrorMessage = "stream error"
	chatErrorMessage   = "chat failure"
)
