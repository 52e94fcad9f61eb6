// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/orrery/pkg/config"
	"github.com/AleutianAI/orrery/services/sim/physics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestService builds a service with the default star system and runs
// its engine for the duration of the test. Listeners are not started;
// tests drive the router directly.
func newTestService(t *testing.T, cfg Config) *service {
	t.Helper()

	svc, err := New(cfg)
	require.NoError(t, err)
	s := svc.(*service)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.cleanup()
	})
	return s
}

func doRequest(s *service, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	s.Router().ServeHTTP(w, req)
	return w
}

func TestService_Health(t *testing.T) {
	s := newTestService(t, Config{})

	w := doRequest(s, "GET", "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"sessions":0`)
}

func TestService_Metrics(t *testing.T) {
	s := newTestService(t, Config{})

	w := doRequest(s, "GET", "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orrery_")
}

func TestService_ListObjects(t *testing.T) {
	s := newTestService(t, Config{})

	w := doRequest(s, "GET", "/v1/objects", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Objects []struct {
			ID         int      `json:"id"`
			Root       bool     `json:"root"`
			Properties []string `json:"properties"`
			Signals    []string `json:"signals"`
		} `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// Root plus the four default bodies.
	require.Len(t, resp.Objects, 5)
	root := resp.Objects[0]
	assert.True(t, root.Root)
	assert.Equal(t, 1, root.ID)
	assert.Contains(t, root.Properties, "bodies")
	assert.Contains(t, root.Properties, "time")
	assert.Contains(t, root.Properties, "conn_count")
	assert.Contains(t, root.Signals, "ship_created")

	body := resp.Objects[1]
	assert.False(t, body.Root)
	assert.Contains(t, body.Properties, "position")
	assert.Contains(t, body.Signals, "collided")
}

func TestService_GetObject(t *testing.T) {
	s := newTestService(t, Config{})

	w := doRequest(s, "GET", "/v1/objects/1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID         int            `json:"id"`
		Root       bool           `json:"root"`
		Properties map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Root)
	assert.Contains(t, resp.Properties, "time")

	// The body list renders as entity references.
	bodies, ok := resp.Properties["bodies"].([]any)
	require.True(t, ok)
	assert.Len(t, bodies, 4)
	first, ok := bodies[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, first, "object")
}

func TestService_GetObject_Errors(t *testing.T) {
	s := newTestService(t, Config{})

	assert.Equal(t, http.StatusNotFound, doRequest(s, "GET", "/v1/objects/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(s, "GET", "/v1/objects/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(s, "GET", "/v1/objects/0", "").Code)
}

func TestService_SnapshotLifecycle(t *testing.T) {
	s := newTestService(t, Config{
		SnapshotPath: t.TempDir(),
		AdminToken:   "secret",
	})

	// Unauthorized without the token.
	assert.Equal(t, http.StatusUnauthorized, doRequest(s, "POST", "/v1/snapshots/alpha", "").Code)

	w := doRequest(s, "POST", "/v1/snapshots/alpha", "secret")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"bodies":4`)

	w = doRequest(s, "GET", "/v1/snapshots", "secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alpha"`)

	w = doRequest(s, "POST", "/v1/snapshots/alpha/restore", "secret")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusOK, doRequest(s, "DELETE", "/v1/snapshots/alpha", "secret").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(s, "DELETE", "/v1/snapshots/alpha", "secret").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(s, "POST", "/v1/snapshots/alpha/restore", "secret").Code)
}

func TestService_SnapshotsDisabledWithoutStore(t *testing.T) {
	s := newTestService(t, Config{})

	assert.Equal(t, http.StatusNotFound, doRequest(s, "GET", "/v1/snapshots", "").Code)
}

func TestBodiesFromConfig_OrbitPlacement(t *testing.T) {
	specs := bodiesFromConfig([]config.BodyConfig{
		{Name: "sun", Class: "star", Mass: 1.989e30, Radius: 6.957e8},
		{Name: "earth", Class: "planet", Mass: 5.972e24, Orbit: 1.496e11},
	})
	require.Len(t, specs, 2)

	earth := specs[1]
	assert.Equal(t, 1.496e11, earth.Position.X)
	assert.Equal(t, 0.0, earth.Position.Y)

	want := physics.CircularOrbitSpeed(1.989e30, 1.496e11)
	assert.InDelta(t, want, earth.Velocity.Y, 1e-9)
	assert.Equal(t, 0.0, earth.Velocity.X)
}

func TestBodiesFromConfig_Empty(t *testing.T) {
	assert.Nil(t, bodiesFromConfig(nil))
}

func TestRedirectToHTTPS(t *testing.T) {
	h := redirectToHTTPS(":8443")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/objects?full=1", nil)
	req.Host = "play.example.com:8000"
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://play.example.com:8443/v1/objects?full=1", w.Header().Get("Location"))
}

func TestRedirectToHTTPS_StandardPort(t *testing.T) {
	h := redirectToHTTPS(":443")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "play.example.com"
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://play.example.com/", w.Header().Get("Location"))
}

func TestRedirectToHTTPS_NoHost(t *testing.T) {
	h := redirectToHTTPS(":8443")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Host = ""
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})
	assert.Equal(t, ":8000", cfg.HTTPAddr)

	cfg = applyConfigDefaults(Config{HTTPAddr: ":9999"})
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}
