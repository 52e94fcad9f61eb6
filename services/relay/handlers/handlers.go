// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the HTTP handlers for the relay service.
//
// The game protocol itself runs over WebSocket (and raw TCP, wired
// elsewhere): everything here is the outer surface around it - health,
// object introspection for debugging, and snapshot administration.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/orrery/services/relay/session"
	"github.com/AleutianAI/orrery/services/sim/engine"
	"github.com/AleutianAI/orrery/services/sim/game"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// engineTimeout bounds how long a REST handler waits for the engine
// goroutine to service its request.
const engineTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// HealthCheck reports service liveness and the current session count.
func HealthCheck(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"service":  "orrery-relay",
			"sessions": mgr.Count(),
		})
	}
}

// HandleSessionWS upgrades the request to a WebSocket and runs the game
// protocol on it until the client disconnects.
func HandleSessionWS(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "error", err, "remote", c.Request.RemoteAddr)
			return
		}
		session.RunWebSocket(mgr, ws)
	}
}

// objectSummary is one entry in the object listing. The id is the entity's
// 1-based position in creation-slot order; it is stable between the list
// and detail endpoints but is not the per-connection protocol object ID.
type objectSummary struct {
	ID         int      `json:"id"`
	Root       bool     `json:"root,omitempty"`
	Properties []string `json:"properties"`
	Signals    []string `json:"signals"`
}

// ListObjects returns every live entity with its member names.
func ListObjects(eng *engine.Engine, world *game.World) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), engineTimeout)
		defer cancel()

		var objects []objectSummary
		err := eng.Do(ctx, func(st *state.State) {
			for i, k := range st.Entities() {
				props, sigs, err := st.MemberNames(k)
				if err != nil {
					continue
				}
				objects = append(objects, objectSummary{
					ID:         i + 1,
					Root:       k == world.Root(),
					Properties: props,
					Signals:    sigs,
				})
			}
		})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"objects": objects})
	}
}

// GetObject returns one entity with its current property values. The id
// parameter is the listing id from ListObjects.
func GetObject(eng *engine.Engine, world *game.World) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object id"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), engineTimeout)
		defer cancel()

		var found, root bool
		var sigs []string
		props := gin.H{}
		err = eng.Do(ctx, func(st *state.State) {
			entities := st.Entities()
			if id > len(entities) {
				return
			}
			ids := make(map[state.EntityKey]int, len(entities))
			for i, k := range entities {
				ids[k] = i + 1
			}
			k := entities[id-1]
			names, signals, merr := st.MemberNames(k)
			if merr != nil {
				return
			}
			for _, name := range names {
				v, perr := st.Property(k, name)
				if perr != nil {
					continue
				}
				props[name] = renderValue(v, ids)
			}
			found = true
			root = k == world.Root()
			sigs = signals
		})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine unavailable"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such object"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":         id,
			"root":       root,
			"properties": props,
			"signals":    sigs,
		})
	}
}

// renderValue converts a state value to plain JSON-friendly Go values.
// Entity references become {"object": id} using the listing ids; references
// to entities missing from ids render as null.
func renderValue(v state.Value, ids map[state.EntityKey]int) any {
	switch v.Kind() {
	case state.KindBool:
		b, _ := v.AsBool()
		return b
	case state.KindInteger:
		i, _ := v.AsInteger()
		return i
	case state.KindScalar:
		f, _ := v.AsScalar()
		return f
	case state.KindText:
		s, _ := v.AsText()
		return s
	case state.KindVector:
		vec, _ := v.AsVector()
		return []float64{vec.X, vec.Y, vec.Z}
	case state.KindEntity:
		k, _ := v.AsEntity()
		if id, ok := ids[k]; ok {
			return gin.H{"object": id}
		}
		return nil
	case state.KindList:
		items, _ := v.AsList()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, renderValue(item, ids))
		}
		return out
	default:
		return nil
	}
}
