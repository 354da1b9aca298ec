// Package dolt implements internal/storage.Storage on top of Dolt, a
// version-controlled MySQL-compatible database, grounded on the teacher's
// internal/storage/dolt package (store.go, migrations.go, events.go).
//
// Two connection modes mirror the teacher's:
//   - Embedded: github.com/dolthub/driver, CGO-gated (store_embedded.go),
//     no server required. A non-CGO build falls back to store_nocgo.go's
//     errNoCGO stub instead of losing the package.
//   - Server mode: github.com/go-sql-driver/mysql against a running
//     `dolt sql-server`, pure Go, used for multi-writer federation, and
//     available regardless of CGO.
//
// Only the embedded connection path needs CGO, so only that path (and its
// driver import) lives behind a build tag; everything in this file,
// including backend registration, builds and runs the same either way.
//
// Dolt itself is not required by this spec (ordinary MySQL would satisfy
// every invariant here); it is kept because it is the teacher's actual
// persistence engine and because built-in history/branching is a natural
// fit for a store whose whole job is versioned schema graphs.
package dolt

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/storage/factory"
)

var tracer = otel.Tracer("github.com/dynaform/core/internal/storage/dolt")

func init() {
	factory.RegisterBackend(factory.BackendDolt, func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return Open(ctx, ParseConfig(cfg))
	})
}

// Store is the Dolt-backed Storage implementation. It embeds *execHandle so
// the Transaction methods implemented against execer in schema.go/entity.go/
// context.go/report.go are promoted directly onto *Store, running
// unwrapped against s.db; RunInTransaction hands the same methods a
// *sql.Tx-backed execHandle instead.
type Store struct {
	*execHandle

	db         *sql.DB
	cfg        Config
	serverMode bool
}

// Open connects to Dolt (embedded or server mode per cfg.ServerMode),
// applies all registered migrations, and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var db *sql.DB
	var err error
	if cfg.ServerMode {
		db, err = openServer(cfg)
	} else {
		db, err = openEmbedded(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open dolt store: %w", err)
	}

	s := &Store{execHandle: &execHandle{exec: db}, db: db, cfg: cfg, serverMode: cfg.ServerMode}
	if err := s.pingWithRetry(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping dolt store: %w", err)
	}
	if !cfg.ReadOnly {
		if err := RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return s, nil
}

func openServer(cfg Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.ServerUser, cfg.ServerPassword, cfg.ServerHost, cfg.ServerPort, cfg.Database)
	return sql.Open("mysql", dsn)
}

// pingWithRetry retries transient connection errors using an exponential
// backoff bounded by cfg.RetryMaxElapsed, matching the teacher's
// isRetryableError/newServerRetryBackoff pattern for server-mode
// connections, which go-sql-driver/mysql does not retry on its own.
func (s *Store) pingWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.cfg.retryMaxElapsed()
	return backoff.Retry(func() error {
		err := s.db.PingContext(ctx)
		if err != nil && !s.serverMode {
			return backoff.Permanent(err)
		}
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction begins a *sql.Tx, hands the caller a Transaction backed
// by it, and commits on a nil return or rolls back otherwise — the teacher's
// BEGIN-IMMEDIATE-with-retry pattern (BeadsLog's Transaction doc comment),
// adapted to MySQL-protocol semantics where the default isolation level
// already serializes writers without an explicit IMMEDIATE hint.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Transaction) error) (err error) {
	ctx, span := tracer.Start(ctx, "dolt.RunInTransaction")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, &execHandle{exec: tx}); err != nil {
		_ = tx.Rollback()
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err = tx.Commit(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// execer abstracts over *sql.DB and *sql.Tx so every query method can be
// written once and used both outside and inside an explicit transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// execHandle implements storage.Transaction over an execer — *sql.DB at the
// top-level Store, or a *sql.Tx inside RunInTransaction.
type execHandle struct {
	exec execer
}

func withSpan(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error", err.Error()))
	}
	return err
}
