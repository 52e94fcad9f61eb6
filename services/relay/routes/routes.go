// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/orrery/services/relay/handlers"
	"github.com/AleutianAI/orrery/services/relay/middleware"
	"github.com/AleutianAI/orrery/services/relay/session"
	"github.com/AleutianAI/orrery/services/sim/engine"
	"github.com/AleutianAI/orrery/services/sim/game"
	"github.com/AleutianAI/orrery/services/snapshot"
)

// SetupRoutes registers every HTTP route on the router. store may be nil,
// which leaves the snapshot endpoints unregistered. staticDir serves the
// web client under /ui when non-empty.
func SetupRoutes(router *gin.Engine, mgr *session.Manager, eng *engine.Engine,
	world *game.World, store *snapshot.Store, adminToken, staticDir string) {

	router.GET("/health", handlers.HealthCheck(mgr))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if staticDir != "" {
		router.StaticFS("/ui", http.Dir(staticDir))

		// Add a friendly redirect from / to the client
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/ui/")
		})
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/session/ws", handlers.HandleSessionWS(mgr))

		// Introspection routes for debugging
		objects := v1.Group("/objects")
		{
			objects.GET("", handlers.ListObjects(eng, world))
			objects.GET("/:id", handlers.GetObject(eng, world))
		}

		if store != nil {
			// Snapshot administration routes
			snapshots := v1.Group("/snapshots")
			snapshots.Use(middleware.BearerAuth(adminToken))
			{
				snapshots.GET("", handlers.ListSnapshots(store))
				snapshots.POST("/:name", handlers.SaveSnapshot(eng, world, store))
				snapshots.POST("/:name/restore", handlers.RestoreSnapshot(eng, world, store))
				snapshots.DELETE("/:name", handlers.DeleteSnapshot(store))
			}
		}
	}
}
