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
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alexandrevilain/chatstream-go/client"
	"github.com/alexandrevilain/chatstream-go/internal/logging"
)

// defaultReadTimeout spans several server heartbeats.
const defaultReadTimeout = 45 * time.Second

type chatOptions struct {
	baseURL        string
	transport      string
	tenantID       string
	conversationID string
	readTimeout    time.Duration
	debug          bool
}

func newChatCmd() *cobra.Command {
	opts := chatOptions{}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session against a chatstream server.
Replies stream in as they are generated. When the server cannot be reached
a simulated reply is shown instead.

Type 'exit' or 'quit' to end the session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts)
		},
	}

	f := chatCmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "http://localhost:8787", "Server base URL")
	f.StringVar(&opts.transport, "transport", string(client.TransportSSE), "Reply transport: sse or json")
	f.StringVar(&opts.tenantID, "tenant", "", "Tenant id sent with every message")
	f.StringVar(&opts.conversationID, "conversation-id", "", "Conversation id (generated when empty)")
	f.DurationVar(&opts.readTimeout, "read-timeout", defaultReadTimeout, "Give up on a stream after this long without data")
	f.BoolVarP(&opts.debug, "debug", "d", false, "Log diagnostics to stderr")

	return chatCmd
}

func runChat(cmd *cobra.Command, opts chatOptions) error {
	transport := client.Transport(opts.transport)
	if transport != client.TransportSSE && transport != client.TransportJSON {
		return fmt.Errorf("unknown transport %q", opts.transport)
	}

	logger := zap.NewNop()
	if opts.debug {
		// Must falls back to a no-op logger.
		logger = logging.Must(true)
		defer func() {
			_ = logger.Sync()
		}()
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	renderer := newTerminalRenderer(out, errOut)

	consumer := client.NewConsumer(opts.baseURL,
		client.WithReadTimeout(opts.readTimeout),
		client.WithLogger(logger.Named("consumer")),
	)
	chat := client.NewChat(consumer, renderer)
	chat.Transport = transport
	chat.TenantID = opts.tenantID
	chat.Logger = logger.Named("chat")
	if opts.conversationID != "" {
		chat.ConversationID = opts.conversationID
	}

	return chatLoop(cmd, chat, renderer, cmd.InOrStdin(), errOut)
}

func chatLoop(cmd *cobra.Command, chat *client.Chat, renderer *terminalRenderer, in io.Reader, errOut io.Writer) error {
	ctx := cmd.Context()
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	fmt.Fprintln(errOut)
	cyan.Fprintln(errOut, "  chatstream")
	dim.Fprintf(errOut, "  Conversation %s. Type 'exit' to quit.\n\n", chat.ConversationID)

	scanner := bufio.NewScanner(in)
	for {
		green.Fprint(errOut, "  you → ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" || input == "bye" {
			dim.Fprintf(errOut, "\n  Bye.\n\n")
			break
		}

		err := chat.Send(ctx, input)
		renderer.EndTurn()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(errOut, "  Error: %v\n\n", err)
		}
	}
	return scanner.Err()
}
