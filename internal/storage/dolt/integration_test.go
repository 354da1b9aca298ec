//go:build cgo && dolt_integration

package dolt

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/dynaform/core/internal/types"
)

// TestServerModeAgainstRealDoltServer exercises the ServerMode connection
// path (openServer/ParseConfig) against an actual dolt sql-server container,
// the counterpart to dolt_test.go's embedded-mode coverage. Gated behind the
// dolt_integration build tag since it pulls a container image; run with:
//
//	go test -tags dolt_integration ./internal/storage/dolt/...
func TestServerModeAgainstRealDoltServer(t *testing.T) {
	if os.Getenv("DYNAFORM_DOLT_INTEGRATION") == "" {
		t.Skip("set DYNAFORM_DOLT_INTEGRATION=1 to run the dolt-sql-server container test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := dolt.Run(ctx, "dolthub/dolt-sql-server:latest", dolt.WithDatabase("dynaform_test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	cfg := Config{
		ServerMode: true,
		ServerHost: host,
		ServerPort: port.Int(),
		ServerUser: "root",
		Database:   "dynaform_test",
	}

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sc := testSchema(fmt.Sprintf("person_%d", time.Now().UnixNano()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))
	require.NotZero(t, sc.ID)

	got, err := s.GetSchema(ctx, sc.ID)
	require.NoError(t, err)
	require.Equal(t, sc.Name, got.Name)

	require.NoError(t, sc.Publish(time.Now().UTC()))
	require.NoError(t, s.PutSchema(ctx, sc, "alice"))

	e := &types.Entity{SchemaID: sc.ID, State: types.EntityPendingEntry}
	require.NoError(t, s.PutEntity(ctx, e, "alice"))
	require.NotZero(t, e.ID)
}
