package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/attest"
	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/adapters/file"
	"github.com/aretw0/attest/pkg/adapters/memory"
	"github.com/aretw0/attest/pkg/adapters/postgres"
	"github.com/aretw0/attest/pkg/adapters/redis"
	"github.com/aretw0/attest/pkg/adapters/sqlite"
	"github.com/aretw0/attest/pkg/analyzer"
	"github.com/aretw0/attest/pkg/audit"
	"github.com/aretw0/attest/pkg/config"
	"github.com/aretw0/attest/pkg/contacts"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/observability"
	"github.com/aretw0/attest/pkg/oracle/mock"
	"github.com/aretw0/attest/pkg/oracle/openai"
	"github.com/aretw0/attest/pkg/persistence/middleware"
	"github.com/aretw0/attest/pkg/ports"
	"github.com/aretw0/attest/pkg/registry"
	"github.com/aretw0/attest/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App bundles a configured Verifier with the resources the commands share.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Verifier *attest.Verifier
	Contacts *contacts.Directory
	Registry *prometheus.Registry

	shutdownTracing tracing.ShutdownFunc
}

// Close stops the Verifier (and the stores it owns), then flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Verifier != nil {
		errs = append(errs, a.Verifier.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from configuration. debug forces the
// debug level.
func NewLogger(cfg *config.Config, debug bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.New(level, cfg.Log.Format), nil
}

// Build wires every component named by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, debug bool) (app *App, err error) {
	app = &App{Config: cfg, Logger: logger}
	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
			if app.shutdownTracing != nil {
				_ = app.shutdownTracing(ctx)
			}
		}
	}()

	// 1. Tracing
	app.shutdownTracing, err = tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	// 2. Audit store
	store, locker, closer, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	if store, err = encryptStore(store, cfg.Audit.Encryption); err != nil {
		return nil, err
	}

	// 3. Tool catalog
	reg := registry.Default()
	if cfg.Registry.Overrides != "" {
		if reg, err = reg.LoadOverrides(cfg.Registry.Overrides); err != nil {
			return nil, err
		}
	}

	// 4. Oracle and analyzer
	oracle, completer, err := newOracle(cfg, logger)
	if err != nil {
		return nil, err
	}
	var replyAnalyzer ports.ReplyAnalyzer = analyzer.Keyword{}
	if cfg.Analyzer.Mode == config.AnalyzerLLM && completer != nil {
		replyAnalyzer = analyzer.NewLLM(completer, analyzer.WithLogger(logger))
	}

	// 5. Contacts
	if cfg.Contacts.Path != "" {
		if app.Contacts, err = contacts.Load(cfg.Contacts.Path); err != nil {
			return nil, err
		}
	}

	// 6. Metrics
	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewCollector(app.Registry, reg.Names())
	if err != nil {
		return nil, err
	}
	hooks := metrics.Hooks()
	if debug {
		hooks = domain.MergeHooks(hooks, createDebugHooks(logger))
	}

	// 7. Verifier
	opts := []attest.Option{
		attest.WithStore(store),
		attest.WithOracle(oracle),
		attest.WithAnalyzer(replyAnalyzer),
		attest.WithRegistry(reg),
		attest.WithSanitizer(audit.NewSanitizer(
			audit.WithKeywords(cfg.Audit.Redaction.Keywords...),
			audit.WithAllowedKeys(cfg.Audit.Redaction.Allow...),
			audit.WithMaxStringLength(cfg.Audit.Redaction.MaxStringLength),
		)),
		attest.WithLifecycleHooks(hooks),
		attest.WithAppendObserver(metrics.ObserveAppend),
		attest.WithLogger(logger),
		attest.WithMaxIterations(cfg.Loop.MaxIterations),
		attest.WithOracleTimeout(cfg.Loop.OracleTimeout),
		attest.WithWriteTimeout(cfg.Audit.WriteTimeout),
	}
	if locker != nil {
		opts = append(opts, attest.WithDistributedLocker(locker, cfg.Audit.Redis.LockTTL))
	}
	for _, c := range closers {
		opts = append(opts, attest.WithCloser(c))
	}
	if app.Verifier, err = attest.New(opts...); err != nil {
		return nil, err
	}

	logger.Debug("Verifier ready",
		"store", cfg.Audit.Store,
		"encrypted", cfg.Audit.Encryption.Key != "",
		"provider", cfg.Oracle.Provider,
		"analyzer", fmt.Sprintf("%T", replyAnalyzer),
		"contacts", app.Contacts.Len(),
	)
	return app, nil
}

func newStore(ctx context.Context, cfg *config.Config) (ports.AuditStore, ports.DistributedLocker, io.Closer, error) {
	switch cfg.Audit.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil, nil, nil
	case config.StoreFile:
		return file.New(cfg.Audit.Dir), nil, nil, nil
	case config.StoreRedis:
		rc := cfg.Audit.Redis
		s := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix), redis.WithTTL(rc.TTL))
		var locker ports.DistributedLocker
		if rc.Lock {
			locker = redis.NewLocker(s.Client(), rc.Prefix)
		}
		return s, locker, s, nil
	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.Audit.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		s, err := sqlite.Open(cfg.Audit.SQLite.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, nil, s, nil
	case config.StorePostgres:
		s, err := postgres.New(ctx, cfg.Audit.Postgres.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, nil, s, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown audit store %q", cfg.Audit.Store)
}

// encryptStore wraps store with payload encryption when a key is configured.
func encryptStore(store ports.AuditStore, ec config.EncryptionConfig) (ports.AuditStore, error) {
	if ec.Key == "" {
		return store, nil
	}
	active, err := middleware.DecodeKey(ec.Key)
	if err != nil {
		return nil, fmt.Errorf("audit.encryption.key: %w", err)
	}
	var fallbacks [][]byte
	for i, k := range ec.FallbackKeys {
		key, err := middleware.DecodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("audit.encryption.fallback_keys[%d]: %w", i, err)
		}
		fallbacks = append(fallbacks, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallbacks})
	if err != nil {
		return nil, err
	}
	return middleware.Chain(store, mw), nil
}

// newOracle returns the reasoning oracle and, for real providers, the same
// client as a Completer for the LLM analyzer.
func newOracle(cfg *config.Config, logger *slog.Logger) (ports.ReasoningOracle, ports.Completer, error) {
	oc := cfg.Oracle
	if oc.Provider == config.ProviderMock {
		logger.Warn("No reasoning oracle configured, every case gets the mock decision")
		return mock.Fallback{}, nil, nil
	}
	if oc.APIKey == "" {
		return nil, nil, fmt.Errorf("oracle.api_key is required for provider %q", oc.Provider)
	}

	opts := []openai.Option{
		openai.WithMaxRetries(oc.MaxRetries),
		openai.WithMaxTokens(oc.MaxTokens),
		openai.WithTimeout(cfg.Loop.OracleTimeout),
		openai.WithRequestsPerSecond(oc.RequestsPerSecond),
		openai.WithLogger(logger),
	}
	if oc.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(oc.BaseURL))
	}
	if oc.Model != "" {
		opts = append(opts, openai.WithModel(oc.Model))
	}
	client, err := openai.New(oc.Provider, oc.APIKey, opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}
