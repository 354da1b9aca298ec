// Package factory creates storage backends based on configuration,
// grounded on the teacher's internal/storage/factory package: a name ->
// constructor registry populated by each backend's init(), looked up by
// name instead of hard-coded branches.
package factory

import (
	"context"
	"fmt"

	"github.com/dynaform/core/internal/storage"
)

// Backend names recognized by New.
const (
	BackendMemory = "memory"
	BackendDolt   = "dolt"
)

// BackendFactory constructs a storage.Storage for one backend name.
type BackendFactory func(ctx context.Context, cfg storage.Config) (storage.Storage, error)

var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a backend constructor under name. Backend
// packages call this from an init() func; internal/storage/dolt registers
// unconditionally, in every build. Only its embedded connection mode is
// CGO-gated (store_embedded.go/store_nocgo.go) — a non-CGO build still
// registers "dolt" and can use server mode, returning errNoCGO only if the
// caller actually requests embedded mode.
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// New opens the backend named by cfg.DSN's scheme ("memory" or "dolt"),
// defaulting to memory when cfg.DSN is empty.
func New(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
	name := backendName(cfg.DSN)
	factory, ok := backendRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (registered: %v)", name, registeredNames())
	}
	return factory(ctx, cfg)
}

func backendName(dsn string) string {
	if dsn == "" {
		return BackendMemory
	}
	for i, c := range dsn {
		if c == ':' {
			return dsn[:i]
		}
	}
	return dsn
}

func registeredNames() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	return names
}
