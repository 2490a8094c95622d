// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var (
		addr  string
		token string
	)

	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Create, drive, and inspect agent progress threads",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&addr, "addr", envOr("AGENTCTL_ADDR", "http://localhost:8080"), "Base URL of the progress API")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("AGENTCTL_TOKEN"), "Bearer token for API authentication")

	root.AddCommand(threadsCmd(&addr, &token))
	root.AddCommand(templatesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
