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
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGateway/cmd/gateway/config"
	"github.com/AleutianAI/AleutianGateway/pkg/logging"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

// --- Global Command Variables ---
var (
	configPath string
	verbose    bool

	// Per-request overrides for the one-shot commands. Empty means
	// "use the config file defaults".
	flagProvider   string
	flagBaseURL    string
	flagAPIKey     string
	flagOllamaPath string
	flagModel      string

	chatThink  bool
	chatSystem string
	chatDirect bool
	pullRaw    bool

	// Loaded by the root PersistentPreRunE.
	gatewayConfig config.GatewayFileConfig
	logger        *logging.Logger

	rootCmd = &cobra.Command{
		Use:           "gateway",
		Short:         "LLM gateway for the Aleutian desktop chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gatewayConfig = cfg

			logCfg := cfg.Logging
			if cmd.Name() != serveCmd.Name() && !verbose {
				logCfg.Quiet = true
			}
			if verbose {
				logCfg.LevelName = "debug"
			}
			logger = logging.New(logCfg)
			slog.SetDefault(logger.Slog())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE:  runServeCommand, // Defined in cmd_serve.go
	}

	chatCmd = &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one chat turn and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runChatCommand, // Defined in cmd_client.go
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List the models the backend offers",
		Args:  cobra.NoArgs,
		RunE:  runModelsCommand,
	}

	existsCmd = &cobra.Command{
		Use:   "exists [model]",
		Short: "Report whether a model is installed (exit status 1 if not)",
		Args:  cobra.ExactArgs(1),
		RunE:  runExistsCommand,
	}

	pullCmd = &cobra.Command{
		Use:   "pull [model]",
		Short: "Download a model into the local daemon",
		Args:  cobra.ExactArgs(1),
		RunE:  runPullCommand,
	}

	ensureCmd = &cobra.Command{
		Use:   "ensure",
		Short: "Make sure the local daemon is running, starting it if needed",
		Args:  cobra.NoArgs,
		RunE:  runEnsureCommand,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (.yaml or .toml). Default: ~/.aleutian/gateway.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level to stderr")

	for _, cmd := range []*cobra.Command{chatCmd, modelsCmd, existsCmd, pullCmd, ensureCmd} {
		cmd.Flags().StringVar(&flagProvider, "provider", "", "Backend: ollama or openai")
		cmd.Flags().StringVar(&flagBaseURL, "base-url", "", "Backend base URL")
		cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Bearer credential for the remote provider")
		cmd.Flags().StringVar(&flagOllamaPath, "ollama-path", "", "Daemon executable")
	}
	chatCmd.Flags().StringVarP(&flagModel, "model", "m", "", "Model name")
	chatCmd.Flags().BoolVar(&chatThink, "think", false, "Enable reasoning (local daemon)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System prompt")
	chatCmd.Flags().BoolVar(&chatDirect, "no-stream", false, "Wait for the whole reply instead of streaming chunks")
	pullCmd.Flags().BoolVar(&pullRaw, "raw", false, "Print progress as JSON lines")

	rootCmd.AddCommand(serveCmd, chatCmd, modelsCmd, existsCmd, pullCmd, ensureCmd)
}

// requestConfig builds the per-call config from the override flags.
func requestConfig() datatypes.GatewayConfig {
	return datatypes.GatewayConfig{
		Provider:   datatypes.Provider(strings.ToLower(strings.TrimSpace(flagProvider))),
		BaseURL:    strings.TrimSpace(flagBaseURL),
		APIKey:     flagAPIKey,
		OllamaPath: strings.TrimSpace(flagOllamaPath),
	}
}
