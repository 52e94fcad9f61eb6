// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orreryctl administers a running Orrery server over its REST API.
//
// # Usage
//
//	orreryctl status
//	orreryctl objects
//	orreryctl objects 1
//	orreryctl snapshot save evening
//	orreryctl snapshot list
//	orreryctl snapshot restore evening
//	orreryctl snapshot delete evening
//
// The server address defaults to http://localhost:8000 and can be set
// with --server. Snapshot commands need --token when the server has
// server.admin_token configured.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var (
	serverURL  string // Base URL of the orrery server
	adminToken string // Bearer token for snapshot commands
)

var rootCmd = &cobra.Command{
	Use:   "orreryctl",
	Short: "Administer a running Orrery server",
	Long: `orreryctl talks to the REST API of a running Orrery server.

It covers health checks, object introspection, and snapshot
administration. The game protocol itself (WebSocket/TCP) is for game
clients, not this tool.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s",
		"http://localhost:8000", "Base URL of the orrery server")
	rootCmd.PersistentFlags().StringVarP(&adminToken, "token", "t",
		"", "Bearer token for snapshot endpoints")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(snapshotCmd)
}
