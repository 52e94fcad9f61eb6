// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/orrery/services/sim/engine"
	"github.com/AleutianAI/orrery/services/sim/game"
	"github.com/AleutianAI/orrery/services/sim/state"
	"github.com/AleutianAI/orrery/services/snapshot"
)

// ListSnapshots returns the metadata of every saved snapshot.
func ListSnapshots(store *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos, err := store.List(c.Request.Context())
		if err != nil {
			slog.Error("snapshot list failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot store error"})
			return
		}
		if infos == nil {
			infos = []snapshot.Info{}
		}
		c.JSON(http.StatusOK, gin.H{"snapshots": infos})
	}
}

// SaveSnapshot captures the current world on the engine goroutine and
// persists it under the given name, overwriting any previous snapshot
// with that name.
func SaveSnapshot(eng *engine.Engine, world *game.World, store *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		ctx, cancel := context.WithTimeout(c.Request.Context(), engineTimeout)
		defer cancel()

		var snap game.Snapshot
		if err := eng.Do(ctx, func(st *state.State) {
			snap = world.Snapshot()
		}); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine unavailable"})
			return
		}

		if err := store.Save(ctx, name, snap); err != nil {
			if errors.Is(err, snapshot.ErrBadName) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot name"})
				return
			}
			slog.Error("snapshot save failed", "name", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot store error"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"name":     name,
			"sim_time": snap.Time,
			"bodies":   len(snap.Bodies),
		})
	}
}

// RestoreSnapshot replaces the running world with a saved snapshot. The
// swap happens between ticks on the engine goroutine; connected clients
// see the old entities destroyed and the restored ones announced.
func RestoreSnapshot(eng *engine.Engine, world *game.World, store *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		snap, err := store.Load(c.Request.Context(), name)
		if err != nil {
			switch {
			case errors.Is(err, snapshot.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "no such snapshot"})
			case errors.Is(err, snapshot.ErrBadName):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot name"})
			default:
				slog.Error("snapshot load failed", "name", name, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot store error"})
			}
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), engineTimeout)
		defer cancel()

		var restoreErr error
		if err := eng.Do(ctx, func(st *state.State) {
			restoreErr = world.Restore(snap)
		}); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine unavailable"})
			return
		}
		if restoreErr != nil {
			slog.Error("snapshot restore failed", "name", name, "error", restoreErr)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "restore failed"})
			return
		}

		slog.Info("snapshot restored", "name", name, "sim_time", snap.Time, "bodies", len(snap.Bodies))
		c.JSON(http.StatusOK, gin.H{
			"name":     name,
			"sim_time": snap.Time,
			"bodies":   len(snap.Bodies),
		})
	}
}

// DeleteSnapshot removes a saved snapshot.
func DeleteSnapshot(store *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		if err := store.Delete(c.Request.Context(), name); err != nil {
			switch {
			case errors.Is(err, snapshot.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "no such snapshot"})
			case errors.Is(err, snapshot.ErrBadName):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot name"})
			default:
				slog.Error("snapshot delete failed", "name", name, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot store error"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": name})
	}
}
