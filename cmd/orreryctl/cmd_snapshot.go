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
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save, list, restore, and delete world snapshots",
	Long: `Manages world snapshots on the server.

Snapshots capture the whole simulation (bodies, ships, sim time) and can
be restored later, replacing the running world between ticks. Connected
clients stay connected across a restore.

The server needs snapshots.path configured; with server.admin_token set,
these commands also need --token.`,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotList,
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current world under a name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotSave,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace the running world with a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotRestore,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// snapshotResult is the server's response to save and restore.
type snapshotResult struct {
	Name    string  `json:"name"`
	SimTime float64 `json:"sim_time"`
	Bodies  int     `json:"bodies"`
}

func snapshotPath(name string) string {
	return "/v1/snapshots/" + url.PathEscape(name)
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Snapshots []struct {
			Name    string    `json:"name"`
			SavedAt time.Time `json:"saved_at"`
			SimTime float64   `json:"sim_time"`
			Bodies  int       `json:"bodies"`
		} `json:"snapshots"`
	}
	if err := newAPIClient().get("/v1/snapshots", &resp); err != nil {
		return err
	}

	if len(resp.Snapshots) == 0 {
		fmt.Println("No snapshots saved.")
		return nil
	}
	for _, s := range resp.Snapshots {
		fmt.Printf("%-20s saved %s  sim time %.1fs  %d bodies\n",
			s.Name, s.SavedAt.Local().Format("2006-01-02 15:04:05"), s.SimTime, s.Bodies)
	}
	return nil
}

func runSnapshotSave(cmd *cobra.Command, args []string) error {
	var result snapshotResult
	if err := newAPIClient().post(snapshotPath(args[0]), &result); err != nil {
		return err
	}
	fmt.Printf("Saved %q at sim time %.1fs (%d bodies)\n",
		result.Name, result.SimTime, result.Bodies)
	return nil
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	var result snapshotResult
	if err := newAPIClient().post(snapshotPath(args[0])+"/restore", &result); err != nil {
		return err
	}
	fmt.Printf("Restored %q to sim time %.1fs (%d bodies)\n",
		result.Name, result.SimTime, result.Bodies)
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	if err := newAPIClient().delete(snapshotPath(args[0]), nil); err != nil {
		return err
	}
	fmt.Printf("Deleted %q\n", args[0])
	return nil
}
