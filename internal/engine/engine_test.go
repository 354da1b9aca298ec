package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dynaform/core/internal/configfile"
	_ "github.com/dynaform/core/internal/storage/memory"
	"github.com/dynaform/core/internal/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := configfile.DefaultConfig()
	e, err := Init(context.Background(), *cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Teardown(); err != nil {
			t.Errorf("Teardown: %v", err)
		}
	})
	return e
}

func TestInitTeardown(t *testing.T) {
	e := newTestEngine(t)
	if e.Store == nil || e.Schemas == nil || e.Hierarchy == nil || e.Reports == nil {
		t.Fatalf("Init left a nil facade: %+v", e)
	}
}

func TestCurrentUserRoundtrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := CurrentUser(ctx); ok {
		t.Fatalf("CurrentUser on bare context should report unset")
	}
	ctx = WithUser(ctx, "alice")
	user, ok := CurrentUser(ctx)
	if !ok || user != "alice" {
		t.Fatalf("CurrentUser = (%q, %v), want (alice, true)", user, ok)
	}
}

func TestRequireUserHardError(t *testing.T) {
	_, err := RequireUser(context.Background())
	if !errors.Is(err, types.ErrNonExistentUser) {
		t.Fatalf("RequireUser on unbound context = %v, want wrapping ErrNonExistentUser", err)
	}
}

func TestPutSchemaRequiresBoundUser(t *testing.T) {
	e := newTestEngine(t)
	sc := &types.Schema{Metadata: types.Metadata{Name: "widget"}, State: types.SchemaDraft}
	if err := e.PutSchema(context.Background(), sc); !errors.Is(err, types.ErrNonExistentUser) {
		t.Fatalf("PutSchema without a bound user = %v, want ErrNonExistentUser", err)
	}

	ctx := WithUser(context.Background(), "alice")
	if err := e.PutSchema(ctx, sc); err != nil {
		t.Fatalf("PutSchema with a bound user: %v", err)
	}
}

func TestPutEntityRequiresBoundUser(t *testing.T) {
	e := newTestEngine(t)
	ctx := WithUser(context.Background(), "alice")

	sc := &types.Schema{Metadata: types.Metadata{Name: "widget"}, State: types.SchemaDraft}
	if err := e.PutSchema(ctx, sc); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}
	if err := sc.Publish(time.Now()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := e.PutSchema(ctx, sc); err != nil {
		t.Fatalf("PutSchema (publish): %v", err)
	}

	ent := &types.Entity{SchemaID: sc.ID}
	if err := e.PutEntity(context.Background(), ent); !errors.Is(err, types.ErrNonExistentUser) {
		t.Fatalf("PutEntity without a bound user = %v, want ErrNonExistentUser", err)
	}
	if err := e.PutEntity(ctx, ent); err != nil {
		t.Fatalf("PutEntity with a bound user: %v", err)
	}
}
