// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// *****************************************************************************************************//
// Package main is the entry point for the multimodal chat server.
//
// The default command, serve, loads the TOML configuration, sets up logging
// and telemetry, creates the Google Cloud clients and the chat service, and
// runs the gin server until SIGINT or SIGTERM. The sample command runs the
// frame sampler against a local video without any cloud dependency.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configDir  string
	runtimeEnv string
)

var rootCmd = &cobra.Command{
	Use:          "chat-server",
	Short:        "Multimodal chat server backed by Gemini",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return SetupOS(configDir, runtimeEnv)
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding .env.toml (default $GCP_CONFIG_PREFIX or configs)")
	rootCmd.PersistentFlags().StringVar(&runtimeEnv, "runtime", "", "runtime overlay, e.g. local or prod (default $GCP_RUNTIME or local)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
