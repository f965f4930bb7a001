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

import "strings"

// DefaultSystemPrompt is used when a request does not carry its own.
const DefaultSystemPrompt = "You are a helpful, concise assistant for a website chat widget. " +
	"Answer using the provided context when it is relevant. " +
	"If the answer is not in the context, say so briefly."

// NoContextMarker replaces a blank context section.
const NoContextMarker = "(no context provided)"

// ComposePrompt builds the text sent to the backend. The sections always
// appear in the same order: system text, context, question, answer cue.
func ComposePrompt(prompt, system, context string) string {
	system = strings.TrimSpace(system)
	if system == "" {
		system = DefaultSystemPrompt
	}
	context = strings.TrimSpace(context)
	if context == "" {
		context = NoContextMarker
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nContext:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n\nAnswer:")
	return b.String()
}
