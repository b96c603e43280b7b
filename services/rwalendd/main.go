package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.etcd.io/bbolt"

	genesis "rwalend/config"
	"rwalend/core/events"
	"rwalend/gateway/auth"
	"rwalend/gateway/middleware"
	"rwalend/gateway/routes"
	"rwalend/gateway/stream"
	"rwalend/observability"
	"rwalend/observability/logging"
	"rwalend/observability/metrics"
	telemetry "rwalend/observability/otel"
	"rwalend/services/rwalend"
	"rwalend/services/rwalendd/audit"
	"rwalend/services/rwalendd/config"
	"rwalend/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/rwalendd/config.yaml", "path to rwalendd config")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("rwalendd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if env == "" {
		env = strings.TrimSpace(os.Getenv("RWALEND_ENV"))
	}
	logger, logCloser := logging.SetupWithFile("rwalendd", env, logging.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer logCloser.Close()

	otelCfg := telemetry.Config{
		ServiceName: "rwalendd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    true,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	}
	if cfg.Telemetry.Insecure != nil {
		otelCfg.Insecure = *cfg.Telemetry.Insecure
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv(otelCfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	params, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	registry, err := params.Registry(uint64(time.Now().Unix()))
	if err != nil {
		return fmt.Errorf("build oracle registry: %w", err)
	}

	hub := stream.NewHub(logger, 0)
	emitters := events.Fanout{observability.Events(), hub, logEmitter{logger: logger}}
	var sink *audit.Sink
	if cfg.Audit.DSN != "" {
		auditDB, err := audit.Open(cfg.Audit.DSN)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		sink, err = audit.NewSink(auditDB, logger)
		if err != nil {
			return err
		}
		emitters = append(emitters, sink)
		logger.Info("audit sink enabled", logging.MaskField("dsn", cfg.Audit.DSN))
	}

	svc, err := rwalend.New(db, rwalend.Options{
		Oracles: registry,
		Emitter: emitters,
		Logger:  logger,
		Metrics: metrics.Protocol(),
		Quota:   params.QuotaLimits(),
	})
	if err != nil {
		return err
	}
	if err := bootstrap(context.Background(), svc, params, logger); err != nil {
		return err
	}

	var noncePersistence auth.NoncePersistence
	if path := cfg.Signatures.NonceStore; path != "" {
		store, err := auth.NewLevelDBNoncePersistence(path)
		if err != nil {
			return fmt.Errorf("open nonce store: %w", err)
		}
		defer store.Close()
		noncePersistence = store
	}
	signatures := auth.NewAuthenticator(cfg.Signatures.TimestampSkew, cfg.Signatures.NonceTTL, cfg.Signatures.NonceCapacity, time.Now, noncePersistence)
	if err := signatures.HydrateNonces(context.Background(), time.Now().Add(-cfg.Signatures.NonceTTL)); err != nil {
		return err
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, limit := range cfg.RateLimits {
		limits[limit.ID] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	handler, err := routes.New(routes.Config{
		Service:    svc,
		Signatures: signatures,
		Admin: middleware.NewAdminAuthenticator(middleware.AdminAuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		AdminScope:    cfg.Auth.AdminScope,
		RateLimiter:   middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "rwalendd", LogRequests: env == "dev"}, logger),
		Stream:        hub,
		Audit:         sink,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("rwalendd listening", slog.String("addr", cfg.ListenAddress), slog.String("storage", cfg.Storage.Backend))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.String("error", err.Error()))
			_ = server.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendBolt:
		db, err := storage.NewBoltDB(cfg.Path, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// bootstrap runs genesis on an empty store and applies the configured pauses.
func bootstrap(ctx context.Context, svc *rwalend.Service, params *genesis.Config, logger *slog.Logger) error {
	initialized, err := svc.Initialized(ctx)
	if err != nil {
		return err
	}
	if initialized {
		logger.Info("protocol state found; skipping genesis")
		return nil
	}
	protocol, err := params.Params()
	if err != nil {
		return fmt.Errorf("genesis params: %w", err)
	}
	st, err := svc.Genesis(ctx, protocol, params.Metadata())
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	for _, module := range params.PausedModules() {
		if err := svc.SetPaused(ctx, module, true); err != nil {
			return fmt.Errorf("pause %s: %w", module, err)
		}
	}
	logger.Info("genesis complete",
		slog.String("admin", st.Admin.String()),
		slog.Any("paused", params.PausedModules()))
	return nil
}

// logEmitter writes each committed event as a structured log line.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	attrs := make([]any, 0, len(payload.Attributes)+1)
	attrs = append(attrs, slog.String("type", payload.Type))
	for k, v := range payload.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	l.logger.Debug("event", attrs...)
}
