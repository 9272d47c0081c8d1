// Package app wires the nestwatch runtime: config, logging, snapshot
// persistence, the session registry and liveness sweep, the notification
// gateway, and HTTP routes.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nestwatch/cmd/internal/api"
	"nestwatch/cmd/internal/emergency"
	"nestwatch/cmd/internal/realtime"
	"nestwatch/cmd/internal/session"
	"nestwatch/cmd/internal/token"
	"nestwatch/cmd/internal/verify"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the nestwatch server runtime.
type App struct {
	cfg Config
	log Logger

	registry  *session.Registry
	scheduler *session.Scheduler
	snapshots session.SnapshotStore

	dbPool *pgxpool.Pool

	hub *realtime.Hub
	ws  *realtime.WSGateway

	api *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshots, dbPool, err := newSnapshotStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	authority, err := token.NewAuthority(token.Config{
		Secret: tokenSecret(cfg, log),
		Issuer: cfg.TokenIssuer,
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		closeSnapshotResources(snapshots, dbPool)
		return nil, err
	}

	hub := realtime.NewHub(log)
	events := session.NewEventLog(cfg.EventLogCap)
	registry := session.NewRegistry(log, authority, events, snapshots, hub)

	if err := registry.RestoreFrom(ctx); err != nil {
		_ = registry.Close()
		closeSnapshotResources(snapshots, dbPool)
		return nil, fmt.Errorf("restore: %w", err)
	}

	scheduler := session.NewScheduler(log, registry, cfg.TickInterval)
	verifier := verify.NewVerifier(cfg.VerifyThreshold)

	var messenger emergency.Messenger
	if cfg.SendGridAPIKey != "" {
		messenger = emergency.NewSendGridMessenger(cfg.SendGridAPIKey, cfg.EmergencyFromName, cfg.EmergencyFromAddr)
		log.Info("emergency.messenger.sendgrid")
	} else {
		log.Warn("emergency.messenger.log_only")
	}
	dispatcher := emergency.NewDispatcher(log, registry, messenger)

	return &App{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		scheduler: scheduler,
		snapshots: snapshots,
		dbPool:    dbPool,
		hub:       hub,
		ws:        realtime.NewWSGateway(log, hub, authority),
		api:       api.NewHandler(log, registry, verifier, dispatcher),
	}, nil
}

// Run starts the liveness sweep and the HTTP server, then blocks until
// context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.ws, a.api)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.scheduler.Run(sweepCtx)

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}

	stopSweep()

	// Final snapshot flush happens inside registry.Close.
	if err := a.registry.Close(); err != nil {
		a.log.Error("registry.close.fail", "err", err)
	}
	closeSnapshotResources(a.snapshots, a.dbPool)

	a.log.Info("server.stopped")
	return nil
}

// newSnapshotStore selects the snapshot backend: Redis, then Postgres, then
// the file-based default.
func newSnapshotStore(ctx context.Context, cfg Config, log Logger) (session.SnapshotStore, *pgxpool.Pool, error) {
	if cfg.RedisURL != "" {
		store, err := session.NewRedisSnapshotStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("snapshot.backend.redis")
		return store, nil, nil
	}

	if cfg.DatabaseURL != "" {
		pool, err := NewSnapshotDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := session.NewPostgresSnapshotStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("snapshot.backend.postgres")
		return store, pool, nil
	}

	store, err := session.NewFileSnapshotStore(cfg.SnapshotPath)
	if err != nil {
		return nil, nil, err
	}
	log.Info("snapshot.backend.file", "path", cfg.SnapshotPath)
	return store, nil, nil
}

func closeSnapshotResources(store session.SnapshotStore, pool *pgxpool.Pool) {
	if store != nil {
		_ = store.Close()
	}
	if pool != nil {
		pool.Close()
	}
}

// tokenSecret returns the configured signing key, or an ephemeral random one
// for dev. Ephemeral keys mean tokens do not survive a restart.
func tokenSecret(cfg Config, log Logger) []byte {
	if cfg.TokenSecret != "" {
		return []byte(cfg.TokenSecret)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Out of entropy is unrecoverable anyway; NewAuthority rejects short keys.
		return nil
	}
	log.Warn("token.secret.ephemeral", "hint", "set NESTWATCH_TOKEN_SECRET for stable tokens")
	return b
}
