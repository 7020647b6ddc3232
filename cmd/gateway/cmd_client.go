// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

// errSilentFailure makes a command exit non-zero after it has already
// printed its answer.
var errSilentFailure = errors.New("")

// =============================================================================
// Command entry points
// =============================================================================

func runChatCommand(cmd *cobra.Command, args []string) error {
	a := newApp(gatewayConfig, logger)
	defer a.close()

	req := datatypes.ChatRequest{
		Config: requestConfig(),
		Model:  flagModel,
	}
	if chatSystem != "" {
		req.Messages = append(req.Messages, datatypes.ChatMessage{Role: datatypes.RoleSystem, Content: chatSystem})
	}
	req.Messages = append(req.Messages, datatypes.ChatMessage{Role: datatypes.RoleUser, Content: strings.Join(args, " ")})
	if cmd.Flags().Changed("think") {
		think := chatThink
		req.Think = &think
	}

	if chatDirect {
		return runDirectChat(cmd.Context(), a, cmd.OutOrStdout(), req)
	}
	return runStreamedChat(cmd.Context(), a, cmd.OutOrStdout(), req)
}

func runModelsCommand(cmd *cobra.Command, _ []string) error {
	a := newApp(gatewayConfig, logger)
	defer a.close()
	return runModels(cmd.Context(), a, cmd.OutOrStdout(), requestConfig())
}

func runExistsCommand(cmd *cobra.Command, args []string) error {
	a := newApp(gatewayConfig, logger)
	defer a.close()
	return runExists(cmd.Context(), a, cmd.OutOrStdout(), requestConfig(), args[0])
}

func runPullCommand(cmd *cobra.Command, args []string) error {
	a := newApp(gatewayConfig, logger)
	defer a.close()
	renderer := newProgressRenderer(cmd.OutOrStdout(), pullRaw)
	return runPull(cmd.Context(), a, renderer, requestConfig(), args[0])
}

func runEnsureCommand(cmd *cobra.Command, _ []string) error {
	a := newApp(gatewayConfig, logger)
	defer a.close()
	return runEnsure(cmd.Context(), a, cmd.OutOrStdout(), requestConfig())
}

// =============================================================================
// Implementations
// =============================================================================

func runDirectChat(ctx context.Context, a *app, out io.Writer, req datatypes.ChatRequest) error {
	content, err := a.dispatcher.Chat(ctx, req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, content)
	return err
}

// runStreamedChat drives the chat through the stream hub so the terminal
// sees the same chunk sequence the UI would.
func runStreamedChat(ctx context.Context, a *app, out io.Writer, req datatypes.ChatRequest) error {
	handle, err := a.hub.StartChat(req)
	if err != nil {
		return err
	}
	events, err := a.hub.Events(ctx, handle)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case datatypes.EventChunk:
			if _, err := io.WriteString(out, ev.Text); err != nil {
				_ = a.hub.Cancel(handle)
				return err
			}
		case datatypes.EventEnd:
			_, err := fmt.Fprintln(out)
			return err
		case datatypes.EventError:
			return errors.New(ev.Error)
		}
	}
	_ = a.hub.Cancel(handle)
	return ctx.Err()
}

func runModels(ctx context.Context, a *app, out io.Writer, cfg datatypes.GatewayConfig) error {
	models, err := a.dispatcher.ListModels(ctx, cfg)
	if err != nil {
		return err
	}
	for _, m := range models {
		if _, err := fmt.Fprintln(out, m); err != nil {
			return err
		}
	}
	return nil
}

func runExists(ctx context.Context, a *app, out io.Writer, cfg datatypes.GatewayConfig, model string) error {
	exists, err := a.dispatcher.ModelExists(ctx, cfg, model)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, exists)
	if !exists {
		return errSilentFailure
	}
	return nil
}

func runPull(ctx context.Context, a *app, r *progressRenderer, cfg datatypes.GatewayConfig, model string) error {
	resolved := a.resolve(cfg)
	handle, err := a.hub.StartPull(datatypes.PullRequest{BaseURL: resolved.TrimmedBaseURL(), Name: model})
	if err != nil {
		return err
	}
	events, err := a.hub.Events(ctx, handle)
	if err != nil {
		return err
	}
	for ev := range events {
		if err := r.render(ev); err != nil {
			_ = a.hub.Cancel(handle)
			return err
		}
		if ev.Type == datatypes.EventError {
			return errors.New(ev.Error)
		}
		if ev.Type == datatypes.EventEnd {
			return nil
		}
	}
	_ = a.hub.Cancel(handle)
	return ctx.Err()
}

func runEnsure(ctx context.Context, a *app, out io.Writer, cfg datatypes.GatewayConfig) error {
	ready := a.supervisor.EnsureRunning(ctx, a.resolve(cfg))
	fmt.Fprintln(out, ready)
	if !ready {
		return errSilentFailure
	}
	return nil
}
