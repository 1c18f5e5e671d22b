// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/gatekeeper/internal/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	pool, teardown, err := startDatabase(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration database:", err)
		os.Exit(1)
	}
	testPool = pool

	code := m.Run()
	teardown()
	os.Exit(code)
}

// startDatabase runs postgres in a container, migrates it to the latest
// schema and returns a pool on it.
func startDatabase(ctx context.Context) (_ *pgxpool.Pool, teardown func(), err error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gatekeeper_test"),
		postgres.WithUsername("gatekeeper"),
		postgres.WithPassword("gatekeeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("start container: %w", err)
	}
	terminate := func() { _ = container.Terminate(ctx) }
	defer func() {
		if err != nil {
			terminate()
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, fmt.Errorf("connection string: %w", err)
	}
	if err := migrateUp(dsn); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, func() {
		pool.Close()
		terminate()
	}, nil
}

func migrateUp(dsn string) error {
	migrator, err := store.NewMigrator(dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
