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
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check server health and session count",
	Args:  cobra.NoArgs,
	RunE:  runStatusCommand,
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runStatusCommand(cmd *cobra.Command, args []string) error {
	var health struct {
		Status   string `json:"status"`
		Service  string `json:"service"`
		Sessions int    `json:"sessions"`
	}
	if err := newAPIClient().get("/health", &health); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	fmt.Printf("Status:   %s\n", health.Status)
	fmt.Printf("Service:  %s\n", health.Service)
	fmt.Printf("Sessions: %d\n", health.Sessions)
	return nil
}
