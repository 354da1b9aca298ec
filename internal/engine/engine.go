// Package engine implements the process-wide session registry spec.md §5
// describes: "the session registry is process-wide with explicit
// init(engine)/teardown() lifecycle; sessions are thread-local scoped. The
// current-user binding is per-session." Go has no thread-local storage, so
// a Session's current-user binding travels on its context.Context instead
// (the idiomatic substitute the teacher's codebase reaches for wherever a
// per-call identity needs to flow through layers, e.g. OpenTelemetry spans
// in internal/storage/dolt). Grounded on the teacher's internal/config
// init-at-startup pattern (sync.go) and internal/storage/dolt/store.go's
// constructor shape.
package engine

import (
	"context"
	"fmt"

	"github.com/dynaform/core/internal/configfile"
	"github.com/dynaform/core/internal/deps"
	"github.com/dynaform/core/internal/hasentities"
	"github.com/dynaform/core/internal/manager"
	"github.com/dynaform/core/internal/report"
	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/storage/factory"
	"github.com/dynaform/core/internal/types"
)

// Engine owns the storage connection and the facades built on top of it
// (spec.md §4.6's Manager, §4.5's HasEntities mixin, §4.7's report
// builder). Construct with Init, release with Teardown.
type Engine struct {
	Store     storage.Storage
	Schemas   *manager.SchemaManager
	Hierarchy *deps.Hierarchy
	Reports   *report.Builder
}

// Init opens the storage backend named by cfg.DSN, runs its migrations
// (the backend's Open does this internally), and wires the facades on top
// of it. Call Teardown when done; failing to do so leaks the underlying
// connection pool.
func Init(ctx context.Context, cfg configfile.Config) (*Engine, error) {
	store, err := factory.New(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("opening storage backend: %w", err)
	}
	schemas := manager.NewSchemaManager(store)
	return &Engine{
		Store:     store,
		Schemas:   schemas,
		Hierarchy: deps.NewHierarchy(schemas),
		Reports:   report.NewBuilder(store),
	}, nil
}

// Teardown releases the underlying storage connection. Safe to call once;
// a second call returns whatever the backend's Close returns for an
// already-closed connection.
func (e *Engine) Teardown() error {
	return e.Store.Close()
}

// HasEntities returns a hasentities.Mixin scoped to hostTable, backed by
// this engine's store (spec.md §4.5).
func (e *Engine) HasEntities(hostTable string) *hasentities.Mixin {
	return hasentities.New(e.Store, hostTable)
}

// userKey is the context key a Session's current-user binding travels on.
type userKey struct{}

// WithUser binds user as the current user for the remainder of ctx's
// lineage, the Go substitute for spec.md §5's thread-local session/current
// user binding.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// CurrentUser returns the user bound to ctx by WithUser, and whether one
// was bound at all.
func CurrentUser(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey{}).(string)
	return u, ok && u != ""
}

// RequireUser is the hard-error path spec.md §5 describes: "failing to set
// [the current user] before a flush that would require audit rows is a
// hard error." Every Engine write path that flushes an audited row calls
// this first instead of letting the error surface from deep inside a
// storage backend as a less specific ErrNonExistentUser.
func RequireUser(ctx context.Context) (string, error) {
	user, ok := CurrentUser(ctx)
	if !ok {
		return "", fmt.Errorf("%w: no current user bound to this context", types.ErrNonExistentUser)
	}
	return user, nil
}

// PutSchema validates and flushes sc, using the context-bound current user
// as the actor (spec.md §5, §6).
func (e *Engine) PutSchema(ctx context.Context, sc *types.Schema) error {
	actor, err := RequireUser(ctx)
	if err != nil {
		return err
	}
	return e.Schemas.Put(ctx, sc, actor)
}

// PutEntity validates and flushes ent, using the context-bound current
// user as the actor.
func (e *Engine) PutEntity(ctx context.Context, ent *types.Entity) error {
	actor, err := RequireUser(ctx)
	if err != nil {
		return err
	}
	return e.Store.PutEntity(ctx, ent, actor)
}

// BuildReport is a thin forward to e.Reports.BuildReport, kept on Engine so
// callers that only ever see an *Engine (e.g. cmd/dynaform) don't need to
// reach into the Reports field directly.
func (e *Engine) BuildReport(ctx context.Context, name string, opts report.Options) (*report.Report, error) {
	return e.Reports.BuildReport(ctx, name, opts)
}
