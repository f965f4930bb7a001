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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// RequestDecoder extracts a StreamRequest from an incoming HTTP request.
type RequestDecoder func(r *http.Request) (StreamRequest, error)

// NewStreamHandler creates an http.Handler that streams the provider's
// response as Server-Sent Events.
func NewStreamHandler(b *Bridge, decoder RequestDecoder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := decoder(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := req.Validate(); err != nil {
			reject(w, err)
			return
		}

		if _, ok := w.(http.Flusher); !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		b.Stream(r.Context(), w, req)
	})
}

// NewChatHandler creates an http.Handler that answers with the complete
// response as a single JSON document.
func NewChatHandler(b *Bridge, decoder RequestDecoder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := decoder(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		text, err := b.Complete(r.Context(), req)
		switch {
		case errors.Is(err, ErrPromptRequired):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		case err != nil:
			b.logger.Error("chat failed",
				zap.String("conversation_id", req.ConversationID),
				zap.String("tenant_id", req.TenantID),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: chatErrorMessage})
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{
			Text:           text,
			ConversationID: req.ConversationID,
			TenantID:       req.TenantID,
		})
	})
}

// DefaultRequestDecoder parses a JSON request body into a StreamRequest.
// Unknown fields are ignored and an empty body decodes to an empty request.
func DefaultRequestDecoder(r *http.Request) (StreamRequest, error) {
	var req StreamRequest
	if r.Body == nil {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return StreamRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
