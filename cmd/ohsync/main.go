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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Qiiks/once-human-ai/pkg/config"
	"github.com/Qiiks/once-human-ai/pkg/logging"
	syncsvc "github.com/Qiiks/once-human-ai/services/sync"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	flagLocalURL   string // Base URL of the local replica
	flagRemoteURL  string // Base URL of the remote replica
	flagConfigPath string // Optional YAML config file
	flagTimeout    int    // Per-request timeout in seconds
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// rootCmd reconciles the two replica knowledge stores.
//
// # Description
//
// The single positional argument selects the direction: "push" (the
// default) converges the remote replica toward the local one, "pull"
// converges the local replica toward the remote one. Any other value is
// a usage error.
//
// # Examples
//
//	ohsync                 # push local -> remote
//	ohsync pull            # pull remote -> local
//	ohsync push --remote http://replica:12200
var rootCmd = &cobra.Command{
	Use:       "ohsync [push|pull]",
	Short:     "Reconcile the local and remote knowledge stores",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"push", "pull"},
	Long: `Diffs the document listings of the local and remote knowledge stores
by composite (source, section) identity and converges them with
last-write-wins timestamp conflict resolution.

Examples:
  ohsync                 # push local changes to the remote store
  ohsync pull            # pull remote changes into the local store
  ohsync push --config sync.yaml`,
	RunE: runSync,
}

// cleanCmd removes duplicate documents from the remote replica.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete duplicate documents (identical text) on the remote store",
	Long: `Fetches every document from the remote store, groups them by text
content, and deletes all but the first of each group. Destructive;
requires --yes.`,
	RunE: runClean,
}

var flagCleanYes bool

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLocalURL, "local", "",
		"Base URL of the local store (overrides LOCAL_RAG_URL)")
	rootCmd.PersistentFlags().StringVar(&flagRemoteURL, "remote", "",
		"Base URL of the remote store (overrides REMOTE_RAG_URL)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "",
		"Path to a YAML sync configuration file")
	rootCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 0,
		"Per-request timeout in seconds (0 uses the configured default)")

	cleanCmd.Flags().BoolVar(&flagCleanYes, "yes", false,
		"Confirm deletion of duplicate documents")
	rootCmd.AddCommand(cleanCmd)
}

func main() {
	logger := logging.Default("ohsync")
	defer logger.Close()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// COMMAND EXECUTION
// =============================================================================

func loadClients() (local, remote *syncsvc.ReplicaClient, err error) {
	cfg, err := config.LoadSync(flagConfigPath, flagLocalURL, flagRemoteURL)
	if err != nil {
		return nil, nil, err
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if flagTimeout > 0 {
		timeout = time.Duration(flagTimeout) * time.Second
	}
	return syncsvc.NewReplicaClient(cfg.LocalURL, timeout),
		syncsvc.NewReplicaClient(cfg.RemoteURL, timeout), nil
}

func runSync(cmd *cobra.Command, args []string) error {
	direction := "push"
	if len(args) == 1 {
		direction = args[0]
	}
	if direction != "push" && direction != "pull" {
		return fmt.Errorf("unknown direction %q: expected push or pull", direction)
	}

	local, remote, err := loadClients()
	if err != nil {
		return err
	}

	source, target := local, remote
	if direction == "pull" {
		source, target = remote, local
	}

	slog.Info("Starting reconciliation",
		"direction", direction, "source", source.BaseURL(), "target", target.BaseURL())

	counts, err := syncsvc.NewReconciler().Reconcile(context.Background(), source, target)
	if err != nil {
		return err
	}

	fmt.Printf("Sync complete: added=%d updated=%d skipped=%d deleted=%d failed=%d\n",
		counts.Added, counts.Updated, counts.Skipped, counts.Deleted, counts.Failed)
	if counts.Failed > 0 {
		return fmt.Errorf("%d document operations failed", counts.Failed)
	}
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	if !flagCleanYes {
		return fmt.Errorf("clean deletes documents on the remote store; re-run with --yes to confirm")
	}

	_, remote, err := loadClients()
	if err != nil {
		return err
	}

	removed, failed, err := syncsvc.NewReconciler().CleanDuplicates(context.Background(), remote)
	if err != nil {
		return err
	}

	fmt.Printf("Clean complete: removed=%d failed=%d\n", removed, failed)
	if failed > 0 {
		return fmt.Errorf("%d duplicate deletions failed", failed)
	}
	return nil
}
