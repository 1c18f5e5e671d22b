// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/auth/memory"
	"github.com/holomush/gatekeeper/internal/auth/postgres"
	authredis "github.com/holomush/gatekeeper/internal/auth/redis"
	"github.com/holomush/gatekeeper/internal/auth/sqlite"
	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/session"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// backend is an opened credential and session store pair behind Users.
type backend struct {
	users   *auth.Users
	closers []func() error
}

// Close releases every connection opened by openBackend, in reverse order.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openBackend connects the stores selected by cfg and builds Users over them.
func openBackend(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger, recorder auth.Recorder) (_ *backend, err error) {
	b := &backend{}
	defer func() {
		if err != nil {
			_ = b.Close() //nolint:errcheck // open error takes precedence
		}
	}()

	var pool Pool
	if cfg.Database.Driver == config.DriverPostgres {
		pool, err = connectPostgres(ctx, cfg, deps, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
	}

	creds, err := openCredentials(cfg, pool)
	if err != nil {
		return nil, err
	}
	if c, ok := creds.(*sqlite.CredentialStore); ok {
		b.closers = append(b.closers, c.Close)
	}

	sessions, err := openSessions(ctx, cfg, deps, pool, logger, b)
	if err != nil {
		return nil, err
	}

	hasher, err := auth.NewArgon2idHasher(cfg.Password.Argon2Params())
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithHasher(hasher),
		auth.WithTokenLength(cfg.Sessions.TokenLength),
		auth.WithValidator(auth.NewPolicyValidator(cfg.Password.Policy())),
	}
	if recorder != nil {
		opts = append(opts, auth.WithRecorder(recorder))
	}

	b.users, err = auth.NewUsersWithSessions(creds, sessions, opts...)
	if err != nil {
		return nil, err
	}
	if err := b.users.Init(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func openCredentials(cfg *config.Config, pool Pool) (auth.CredentialStore, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return postgres.NewUserRepository(pool), nil
	case config.DriverSQLite:
		path, err := sqlitePath(cfg)
		if err != nil {
			return nil, err
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return memory.NewCredentialStore(), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("database.driver", cfg.Database.Driver).
			Errorf("unknown database driver")
	}
}

func sqlitePath(cfg *config.Config) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	dir, err := xdg.DataDir()
	if err != nil {
		return "", err
	}
	if err := xdg.EnsureDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, "users.db"), nil
}

func openSessions(ctx context.Context, cfg *config.Config, deps *Deps, pool Pool, logger *slog.Logger, b *backend) (auth.SessionStore, error) {
	lifetime := cfg.Sessions.DefaultLifetime

	switch cfg.Sessions.Backend {
	case config.SessionsMemory:
		return session.NewMap(session.WithDefaultLifetime(lifetime)), nil
	case config.SessionsPostgres:
		repo := postgres.NewSessionRepository(pool,
			postgres.WithSessionLogger(logger),
			postgres.WithSessionLifetime(lifetime))
		if err := repo.Init(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case config.SessionsRedis:
		rc := cfg.Sessions.Redis
		client := deps.RedisFactory(&goredis.Options{
			Addr:     rc.Addr,
			Username: rc.Username,
			Password: rc.Password,
			DB:       rc.DB,
		})
		b.closers = append(b.closers, client.Close)

		store := authredis.NewSessionStore(client,
			authredis.WithKeyPrefix(rc.KeyPrefix),
			authredis.WithDefaultLifetime(lifetime),
			authredis.WithLogger(logger))
		if err := withRetry(ctx, cfg, logger, "redis", store.Ping); err != nil {
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", rc.Addr).Wrap(err)
		}
		return store, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("sessions.backend", cfg.Sessions.Backend).
			Errorf("unknown session backend")
	}
}

func connectPostgres(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (Pool, error) {
	pool, err := deps.PoolFactory(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := withRetry(ctx, cfg, logger, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// withRetry calls ping with exponential backoff, at most cfg.Connect.Attempts times.
func withRetry(ctx context.Context, cfg *config.Config, logger *slog.Logger, target string, ping func(context.Context) error) error {
	attempts := cfg.Connect.Attempts
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(cfg.Connect.InitialBackoff))

	var attempt uint64
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			logger.WarnContext(ctx, "connection attempt failed",
				"target", target,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
}
