// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/holomush/gatekeeper/internal/auth/postgres"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/internal/store"
)

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens a PostgreSQL pool.
	// Default: pgxpool.New
	PoolFactory func(ctx context.Context, dsn string) (Pool, error)

	// RedisFactory creates a redis client.
	// Default: goredis.NewClient
	RedisFactory func(opts *goredis.Options) goredis.UniversalClient

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(dsn string) (Migrator, error)

	// ObservabilityServerFactory creates the janitor's metrics server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// SignalContext derives the janitor's run context.
	// Default: signal.NotifyContext on SIGINT and SIGTERM
	SignalContext func(parent context.Context) (context.Context, context.CancelFunc)

	// Stdin supplies --password-stdin input.
	// Default: os.Stdin
	Stdin io.Reader
}

// Pool is the part of *pgxpool.Pool the CLI uses. It satisfies
// postgres.Querier.
type Pool interface {
	postgres.Querier
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, dsn string) (Pool, error) {
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = func(opts *goredis.Options) goredis.UniversalClient {
			return goredis.NewClient(opts)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(dsn string) (Migrator, error) {
			m, err := store.NewMigrator(dsn)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.SignalContext == nil {
		out.SignalContext = func(parent context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		}
	}
	if out.Stdin == nil {
		out.Stdin = os.Stdin
	}
	return &out
}
