// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relay provides the core relay service for Orrery.
//
// This package contains the main service type that assembles every
// component of the server: the simulation engine and game world, the
// session manager bridging connections to the engine, the snapshot
// store, HTTP routing, and observability infrastructure.
//
// # Architecture
//
//	                 ┌──────────────┐
//	 WebSocket ────► │              │        ┌────────────┐
//	                 │   session    │ inbox  │   engine   │
//	 raw TCP ──────► │   manager    │ ─────► │  goroutine │
//	                 │              │ ◄───── │  (world +  │
//	                 └──────────────┘ sink   │   state)   │
//	                                         └────────────┘
//
// All simulation state is owned by the engine goroutine; HTTP handlers
// that need a consistent view go through Engine.Do.
//
// # Usage
//
//	cfg, err := config.LoadFrom(configPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := relay.New(relay.FromConfig(cfg, configPath))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/orrery/pkg/config"
	"github.com/AleutianAI/orrery/pkg/logging"
	"github.com/AleutianAI/orrery/services/relay/observability"
	"github.com/AleutianAI/orrery/services/relay/routes"
	"github.com/AleutianAI/orrery/services/relay/session"
	"github.com/AleutianAI/orrery/services/sim/engine"
	"github.com/AleutianAI/orrery/services/sim/game"
	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/AleutianAI/orrery/services/sim/state"
	"github.com/AleutianAI/orrery/services/snapshot"
)

// shutdownGrace bounds HTTP server drain time on shutdown.
const shutdownGrace = 5 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the relay service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the servers and blocks until a shutdown signal or a
	// fatal error. On SIGINT/SIGTERM it drains the HTTP listeners, stops
	// the engine, and returns nil.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the relay service configuration. The zero value runs an
// HTTP-only server on :8000 with the built-in star system and no snapshot
// persistence.
type Config struct {
	// HTTPAddr is the plain HTTP listen address. Default: ":8000".
	HTTPAddr string

	// HTTPSAddr enables TLS when non-empty. The HTTP listener then only
	// redirects to HTTPS.
	HTTPSAddr string
	CertFile  string
	KeyFile   string

	// TCPAddr enables the newline-delimited TCP listener when non-empty.
	TCPAddr string

	// AdminToken guards the snapshot endpoints. Empty leaves them open.
	AdminToken string

	// StaticDir serves the web client under /ui when non-empty.
	StaticDir string

	// OTLPEndpoint enables OpenTelemetry trace export when non-empty.
	OTLPEndpoint string

	// TickRate is the simulation frequency in Hz. Zero uses the engine
	// default.
	TickRate float64

	// MaxAccel and ShipRadius tune created ships; zero values use the
	// game defaults.
	MaxAccel   float64
	ShipRadius float64

	// SnapshotPath enables snapshot persistence when non-empty.
	SnapshotPath string

	// Bodies seeds the star system. Nil means the built-in default.
	Bodies []game.BodySpec

	// ConfigPath, when non-empty, is watched for changes; edits to the
	// logging level take effect without a restart.
	ConfigPath string
}

// FromConfig converts the on-disk configuration into a relay Config.
//
// Bodies declared with an orbit radius are placed in a circular orbit of
// that radius around the most massive configured body, offset along +X
// with the orbital velocity along +Y.
func FromConfig(oc config.OrreryConfig, configPath string) Config {
	cfg := Config{
		HTTPAddr:     oc.Server.HTTPAddr,
		HTTPSAddr:    oc.Server.HTTPSAddr,
		CertFile:     oc.Server.CertFile,
		KeyFile:      oc.Server.KeyFile,
		TCPAddr:      oc.Server.TCPAddr,
		AdminToken:   oc.Server.AdminToken,
		StaticDir:    oc.Server.StaticDir,
		OTLPEndpoint: oc.Server.OTLPEndpoint,
		TickRate:     oc.Sim.TickRate,
		MaxAccel:     oc.Sim.MaxAccel,
		ShipRadius:   oc.Sim.ShipRadius,
		SnapshotPath: oc.Snapshots.Path,
		ConfigPath:   configPath,
	}
	cfg.Bodies = bodiesFromConfig(oc.Bodies)
	return cfg
}

// bodiesFromConfig resolves orbit declarations into positions and
// velocities. Returns nil for an empty list so the world uses its default
// system.
func bodiesFromConfig(bodies []config.BodyConfig) []game.BodySpec {
	if len(bodies) == 0 {
		return nil
	}

	// Orbits are resolved around the most massive body.
	center := bodies[0]
	for _, b := range bodies[1:] {
		if b.Mass > center.Mass {
			center = b
		}
	}
	centerPos := physics.Vec3{X: center.Position[0], Y: center.Position[1], Z: center.Position[2]}
	centerVel := physics.Vec3{X: center.Velocity[0], Y: center.Velocity[1], Z: center.Velocity[2]}

	specs := make([]game.BodySpec, 0, len(bodies))
	for _, b := range bodies {
		spec := game.BodySpec{
			Name:     b.Name,
			Class:    game.ClassPlanet,
			Mass:     b.Mass,
			Radius:   b.Radius,
			Position: physics.Vec3{X: b.Position[0], Y: b.Position[1], Z: b.Position[2]},
			Velocity: physics.Vec3{X: b.Velocity[0], Y: b.Velocity[1], Z: b.Velocity[2]},
		}
		if b.Class == "star" {
			spec.Class = game.ClassStar
		}
		if b.Orbit > 0 && b.Name != center.Name {
			speed := physics.CircularOrbitSpeed(center.Mass, b.Orbit)
			spec.Position = centerPos.Add(physics.Vec3{X: b.Orbit})
			spec.Velocity = centerVel.Add(physics.Vec3{Y: speed})
		}
		specs = append(specs, spec)
	}
	return specs
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8000"
	}
	return cfg
}

// =============================================================================
// Service Implementation
// =============================================================================

// service is the concrete relay implementation.
type service struct {
	config  Config
	router  *gin.Engine
	st      *state.State
	world   *game.World
	engine  *engine.Engine
	manager *session.Manager
	metrics *observability.Metrics
	store   *snapshot.Store

	tracerCleanup func(context.Context)
}

// New assembles a relay service from the configuration.
//
// # Description
//
// Builds the state store, game world, engine, and session manager, opens
// the snapshot store when persistence is configured, initializes tracing
// when an OTLP endpoint is configured, and registers all HTTP routes.
// The engine does not start ticking until Run() is called.
//
// # Outputs
//
//   - Service: Ready to Run
//   - error: Non-nil if the world, snapshot store, or tracer fail to
//     initialize
func New(cfg Config) (Service, error) {
	s := &service{
		config:  applyConfigDefaults(cfg),
		metrics: observability.NewMetrics(),
	}

	s.st = state.NewState()
	world, err := game.NewWorld(game.Config{
		Bodies:     s.config.Bodies,
		MaxAccel:   s.config.MaxAccel,
		ShipRadius: s.config.ShipRadius,
	}, s.st)
	if err != nil {
		return nil, fmt.Errorf("failed to create world: %w", err)
	}
	s.world = world

	s.engine = engine.New(engine.Config{
		TickRate: s.config.TickRate,
		OnTick:   s.metrics.ObserveTick,
	}, s.st, nil, nil)
	s.world.Register(s.engine)

	s.manager = session.NewManager(s.engine, s.st, s.world, s.metrics)
	s.engine.SetSink(s.manager)

	if s.config.SnapshotPath != "" {
		store, err := snapshot.Open(snapshot.DefaultConfig(s.config.SnapshotPath))
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		s.store = store
	}

	if s.config.OTLPEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.initRouter()

	slog.Info("relay service created",
		"http_addr", s.config.HTTPAddr,
		"https_addr", s.config.HTTPSAddr,
		"tcp_addr", s.config.TCPAddr,
		"tick_rate", s.config.TickRate,
		"snapshots", s.config.SnapshotPath != "",
	)
	return s, nil
}

// Run starts the engine and all configured listeners.
//
// # Description
//
// Blocks until a shutdown signal (SIGINT/SIGTERM) or a fatal listener
// error. Any one component failing stops the rest.
func (s *service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.run(ctx)
}

// run is Run without the signal handling, for tests.
func (s *service) run(ctx context.Context) error {
	defer s.cleanup()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.engine.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	httpSrv := &http.Server{Addr: s.config.HTTPAddr, Handler: s.httpHandler()}
	g.Go(func() error {
		slog.Info("HTTP listener starting", "addr", s.config.HTTPAddr)
		return serve(ctx, httpSrv, "", "")
	})

	if s.config.HTTPSAddr != "" {
		httpsSrv := &http.Server{Addr: s.config.HTTPSAddr, Handler: s.router}
		g.Go(func() error {
			slog.Info("HTTPS listener starting", "addr", s.config.HTTPSAddr)
			return serve(ctx, httpsSrv, s.config.CertFile, s.config.KeyFile)
		})
	}

	if s.config.TCPAddr != "" {
		ln, err := net.Listen("tcp", s.config.TCPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.config.TCPAddr, err)
		}
		g.Go(func() error {
			slog.Info("TCP listener starting", "addr", ln.Addr().String())
			return session.ServeTCP(ctx, s.manager, ln)
		})
	}

	if s.config.ConfigPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, s.config.ConfigPath, s.onConfigChange)
		})
	}

	return g.Wait()
}

// onConfigChange applies the subset of configuration that can change at
// runtime. Today that is only the logging level.
func (s *service) onConfigChange(oc config.OrreryConfig) {
	if err := logging.SetLevel(oc.Logging.Level); err != nil {
		slog.Warn("config reload: bad logging level", "level", oc.Logging.Level, "error", err)
		return
	}
	slog.Info("config reloaded", "log_level", oc.Logging.Level)
}

// Router returns the Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// httpHandler picks what the plain HTTP listener serves: the router, or a
// redirect to HTTPS when TLS is enabled.
func (s *service) httpHandler() http.Handler {
	if s.config.HTTPSAddr == "" {
		return s.router
	}
	return redirectToHTTPS(s.config.HTTPSAddr)
}

// redirectToHTTPS redirects every request to the HTTPS listener,
// preserving path and query. Requests without a Host header get a 404
// since there is nowhere to redirect them to.
func redirectToHTTPS(httpsAddr string) http.Handler {
	_, port, _ := net.SplitHostPort(httpsAddr)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host == "" {
			http.NotFound(w, r)
			return
		}
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host
		if port != "" && port != "443" {
			target += ":" + port
		}
		target += r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// serve runs an HTTP server until it fails or ctx is canceled, then
// drains it.
func serve(ctx context.Context, srv *http.Server, certFile, keyFile string) error {
	errc := make(chan error, 1)
	go func() {
		if certFile != "" {
			errc <- srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown error", "error", err)
		}
		<-errc
		return nil
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("relay-service"))

	routes.SetupRoutes(s.router, s.manager, s.engine, s.world, s.store,
		s.config.AdminToken, s.config.StaticDir)
}

// initTracer sets up the OpenTelemetry OTLP trace exporter.
//
// # Description
//
// Connects to the configured OTLP collector over gRPC, installs a batch
// span processor with an always-on sampler, and registers the W3C trace
// context propagator. Returns a cleanup function that flushes and shuts
// down the exporter.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("relay-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("snapshot store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
