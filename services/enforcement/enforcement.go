// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enforcement provides the policy enforcement service for
// AleutianGuardian.
//
// This package contains the main Service type that coordinates all
// components: HTTP routing, the capability registry, platform adapters,
// the Badger-backed job store, and observability infrastructure.
//
// # Enterprise Integration
//
// The service supports dependency injection via extensions.ServiceOptions,
// enabling AleutianEnterprise to provide custom implementations of:
//   - AuthProvider: Custom authentication (JWT, API keys)
//   - AuditLogger: Compliance audit logging
//   - CredentialProvider: External secret managers
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	cfg := enforcement.Config{Port: 12310}
//	svc, err := enforcement.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
//
// Enterprise (with custom implementations):
//
//	opts := &extensions.ServiceOptions{
//	    AuthProvider: enterpriseAuth,
//	    AuditLogger:  enterpriseAudit,
//	}
//	svc, err := enforcement.New(cfg, opts)
//
// # Import Path
//
// Enterprise imports this package as:
//
//	import "github.com/AleutianAI/AleutianGuardian/services/enforcement"
package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/adapters"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/capability"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/credentials"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/dispatch"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/jobs"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/observability"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/policy"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/routes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the enforcement service.
//
// # Description
//
// Service abstracts the enforcement lifecycle, enabling testing and
// alternative implementations. The interface follows the minimal surface
// area principle - only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
//
// # Assumptions
//
//   - Service is fully initialized before Run() is called
//   - Run() is called at most once per Service instance
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Assumptions
	//
	//   - Caller will not modify the router
	Router() *gin.Engine

	// Close releases the job store, credential watcher, and tracer.
	// Run() calls this automatically on exit; call it directly when the
	// service is used without Run() (integration tests).
	Close()
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds enforcement service configuration options.
//
// # Description
//
// Config centralizes all configuration for the enforcement service.
// Values can be populated from environment variables, config files,
// or programmatically for testing.
//
// # Required Fields
//
// None - all fields have sensible defaults.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Full configuration
//	cfg := Config{
//	    Port:            12310,
//	    StorePath:       "/var/lib/guardian/enforcement",
//	    CredentialsPath: "/etc/guardian/credentials.yaml",
//	    OTelEndpoint:    "localhost:4317",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// StorePath is the directory for the Badger job store.
	// If empty, an in-memory store is used (data is lost on restart).
	StorePath string

	// CredentialsPath is the YAML file holding per-platform API
	// credentials. If empty, the service runs without credentials and
	// managed pushes fail with a credential error.
	CredentialsPath string

	// NextDNSBaseURL overrides the NextDNS API endpoint, for testing.
	// Default: "https://api.nextdns.io"
	NextDNSBaseURL string

	// NetflixBaseURL overrides the Netflix API endpoint, for testing.
	// Default: "https://api.netflix.com"
	NetflixBaseURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "guardian-otel-collector:4317"
	OTelEndpoint string

	// EnableTracing controls OTLP trace export. Default: false
	// (the home-server deployment usually has no collector).
	EnableTracing bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// MaxConcurrentPlatforms caps simultaneous platform pushes per
	// dispatch. Default: 4
	MaxConcurrentPlatforms int

	// PushTimeout bounds each adapter call. Default: 15s
	PushTimeout time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - Capability registry (embedded platform matrix)
//   - Platform adapters (NextDNS, Netflix managed; Bark guided)
//   - Badger-backed policy/platform/job store
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	router        *gin.Engine
	badger        *store.BadgerStore
	dispatcher    *dispatch.Dispatcher
	tracker       *jobs.Tracker
	adapters      *adapters.Registry
	credFile      *credentials.FileStore
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new enforcement Service with the given configuration.
//
// # Description
//
// New initializes all enforcement components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (when enabled)
//  3. Opens the Badger store (on-disk or in-memory)
//  4. Loads the embedded capability matrix
//  5. Registers the platform adapters
//  6. Loads platform credentials (optional, hot-reloaded)
//  7. Builds the dispatcher and sets up HTTP routes
//
// If opts is nil, DefaultOptions() is used (no-op implementations).
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension options for enterprise features. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run enforcement service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - Credential file absence is fatal only when CredentialsPath is set
//
// # Assumptions
//
//   - StorePath (when set) is a writable directory
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Apply extension options (use defaults if nil)
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	// Initialize OpenTelemetry tracer
	if s.config.EnableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	// Open the policy/platform/job store
	if err := s.initStore(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Load credentials (optional)
	if err := s.initCredentials(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	// Build the enforcement pipeline
	if err := s.initDispatcher(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to build dispatcher: %w", err)
	}

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.Close()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting enforcement server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases all resources held by the service. Safe to call more
// than once.
func (s *service) Close() {
	if s.credFile != nil {
		if err := s.credFile.Close(); err != nil {
			slog.Warn("credential store close error", "error", err)
		}
		s.credFile = nil
	}
	if s.badger != nil {
		if err := s.badger.Close(); err != nil {
			slog.Warn("store close error", "error", err)
		}
		s.badger = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.NextDNSBaseURL == "" {
		cfg.NextDNSBaseURL = "https://api.nextdns.io"
	}
	if cfg.NetflixBaseURL == "" {
		cfg.NetflixBaseURL = "https://api.netflix.com"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "guardian-otel-collector:4317"
	}
	if cfg.PushTimeout == 0 {
		cfg.PushTimeout = 15 * time.Second
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("enforcement-service")))
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

// initStore opens the Badger-backed store, in-memory when no path is
// configured.
func (s *service) initStore() error {
	var err error
	if s.config.StorePath == "" {
		slog.Info("No store path configured, using in-memory store")
		s.badger, err = store.OpenInMemory()
		return err
	}
	s.badger, err = store.Open(store.DefaultConfig(s.config.StorePath))
	if err == nil {
		slog.Info("Opened enforcement store", "path", s.config.StorePath)
	}
	return err
}

// initCredentials loads the platform credential file if configured.
// An explicit CredentialProvider in ServiceOptions takes precedence.
func (s *service) initCredentials() error {
	if s.opts.CredentialProvider != nil {
		slog.Info("Using injected credential provider")
		return nil
	}
	if s.config.CredentialsPath == "" {
		slog.Warn("No credential file configured, managed pushes will fail")
		return nil
	}
	fileStore, err := credentials.NewFileStore(s.config.CredentialsPath, slog.Default())
	if err != nil {
		return err
	}
	s.credFile = fileStore
	s.opts.CredentialProvider = fileStore
	return nil
}

// initDispatcher wires the capability registry, adapters, tracker, and
// metrics into the fan-out dispatcher.
func (s *service) initDispatcher() error {
	caps, err := capability.NewRegistry()
	if err != nil {
		return fmt.Errorf("load capability matrix: %w", err)
	}

	s.adapters = adapters.NewRegistry()
	if err := s.adapters.RegisterManaged(adapters.NewNextDNS(s.config.NextDNSBaseURL, slog.Default())); err != nil {
		return err
	}
	if err := s.adapters.RegisterManaged(adapters.NewNetflix(s.config.NetflixBaseURL, slog.Default())); err != nil {
		return err
	}
	if err := s.adapters.RegisterGuided(adapters.NewBark()); err != nil {
		return err
	}

	s.tracker = jobs.NewTracker(s.badger, slog.Default())
	metrics := observability.NewEnforcementMetrics(prometheus.DefaultRegisterer)

	s.dispatcher, err = dispatch.New(dispatch.Deps{
		Rules:       policy.NewResolver(s.badger),
		Caps:        caps,
		Adapters:    s.adapters,
		Platforms:   s.badger,
		Tracker:     s.tracker,
		Credentials: s.opts.CredentialProvider,
		Audit:       s.opts.AuditLogger,
		Metrics:     metrics,
		Logger:      slog.Default(),
	}, dispatch.Options{
		MaxConcurrentPlatforms: s.config.MaxConcurrentPlatforms,
		PushTimeout:            s.config.PushTimeout,
	})
	return err
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("enforcement-service"))

	routes.SetupRoutes(s.router, routes.Deps{
		Dispatcher: s.dispatcher,
		Tracker:    s.tracker,
		Adapters:   s.adapters,
		Auth:       s.opts.AuthProvider,
	})
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
