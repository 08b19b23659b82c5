// Package daemon composes the session daemon out of its parts via fx.
package daemon

import (
	"context"
	"errors"
	"io/fs"

	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/config"
	"github.com/lunamsg/syncd/internal/ingest"
	"github.com/lunamsg/syncd/internal/lock"
	"github.com/lunamsg/syncd/internal/logging"
	"github.com/lunamsg/syncd/internal/message"
	"github.com/lunamsg/syncd/internal/outbox"
	"github.com/lunamsg/syncd/internal/roster"
	"github.com/lunamsg/syncd/internal/session"
	"github.com/lunamsg/syncd/internal/status"
	"github.com/lunamsg/syncd/internal/store"
	"github.com/lunamsg/syncd/internal/stream"
	"github.com/lunamsg/syncd/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConfig,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCredentials,
			provideMessageManager,
			provideIngestor,
			provideReconciler,
			provideAdapter,
			provideSender,
			provideStreamService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no config file, using defaults")
		return &config.Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCredentials(p Params) transport.CredentialProvider {
	return transport.FileProvider{Path: session.TokenPath(p.SessionName)}
}

func provideMessageManager(db *store.DB, b *bus.Bus, logger *zap.Logger) *message.Manager {
	return message.NewManager(db, b, logger)
}

func provideIngestor(db *store.DB, mgr *message.Manager, r *roster.Reconciler, b *bus.Bus, logger *zap.Logger) *ingest.Ingestor {
	return ingest.New(db, mgr, r, b, logger)
}

func provideReconciler(db *store.DB, b *bus.Bus, logger *zap.Logger) *roster.Reconciler {
	return roster.NewReconciler(db, b, logger)
}

func provideAdapter(cfg *config.Config, creds transport.CredentialProvider, machine *status.Machine, ing *ingest.Ingestor, b *bus.Bus, logger *zap.Logger) *transport.Adapter {
	return transport.NewAdapter(
		cfg.Server.MessageURL,
		creds,
		machine,
		ing,
		b,
		logger,
		cfg.Server.ReconnectMin(),
		cfg.Server.ReconnectMax(),
	)
}

func provideSender(db *store.DB, mgr *message.Manager, adapter *transport.Adapter, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	// No media endpoint yet, so no uploader is wired; attachments still
	// walk the uploading state on their way out.
	return outbox.NewSender(db, mgr, adapter, nil, b, logger)
}

func provideStreamService(cfg *config.Config, creds transport.CredentialProvider, b *bus.Bus, logger *zap.Logger) *stream.Service {
	source := &stream.WSSource{
		URL:    cfg.Server.QuoteURL,
		Creds:  creds,
		Logger: logger,
	}
	return stream.New(source, b, logger, cfg.Stream.MinInterval())
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, lk *lock.Lock, adapter *transport.Adapter, sender *outbox.Sender, quotes *stream.Service, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if cfg.Server.MessageURL != "" {
				adapter.Start(context.Background())
			} else {
				logger.Warn("no message endpoint configured, running offline")
			}

			// The sender idles until the transport reports a connection,
			// so it starts unconditionally.
			sender.Start(context.Background())

			if cfg.Server.QuoteURL != "" {
				if err := quotes.Start(context.Background()); err != nil {
					logger.Warn("quote stream unavailable", zap.Error(err))
				}
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			quotes.Stop()
			sender.Stop()
			adapter.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
