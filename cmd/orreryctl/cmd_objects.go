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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var objectsCmd = &cobra.Command{
	Use:   "objects [id]",
	Short: "Inspect live simulation objects",
	Long: `Lists every live object with its members, or shows one object with
its current property values when an id is given.

The ids shown here are debugging ids from the introspection endpoint,
not the per-connection object ids of the game protocol.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runObjectsCommand,
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runObjectsCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("object id must be a number, got %q", args[0])
		}
		return showObject(args[0])
	}
	return listObjects()
}

func listObjects() error {
	var resp struct {
		Objects []struct {
			ID         int      `json:"id"`
			Root       bool     `json:"root"`
			Properties []string `json:"properties"`
			Signals    []string `json:"signals"`
		} `json:"objects"`
	}
	if err := newAPIClient().get("/v1/objects", &resp); err != nil {
		return err
	}

	for _, obj := range resp.Objects {
		marker := " "
		if obj.Root {
			marker = "*"
		}
		fmt.Printf("%s %4d  properties: %s\n", marker, obj.ID,
			strings.Join(obj.Properties, ", "))
		if len(obj.Signals) > 0 {
			fmt.Printf("        signals:    %s\n", strings.Join(obj.Signals, ", "))
		}
	}
	fmt.Printf("\n%d objects (* = root)\n", len(resp.Objects))
	return nil
}

func showObject(id string) error {
	var resp struct {
		ID         int                        `json:"id"`
		Root       bool                       `json:"root"`
		Properties map[string]json.RawMessage `json:"properties"`
		Signals    []string                   `json:"signals"`
	}
	if err := newAPIClient().get("/v1/objects/"+id, &resp); err != nil {
		return err
	}

	fmt.Printf("Object %d (root: %v)\n", resp.ID, resp.Root)
	for name, raw := range resp.Properties {
		fmt.Printf("  %-12s %s\n", name, string(raw))
	}
	if len(resp.Signals) > 0 {
		fmt.Printf("  signals: %s\n", strings.Join(resp.Signals, ", "))
	}
	return nil
}
