//go:build !cgo

package dolt

import (
	"database/sql"
	"errors"
)

// errNoCGO is returned when embedded mode is requested from a binary built
// without CGO, matching the teacher's store_nocgo.go naming. Server mode is
// unaffected: it only needs github.com/go-sql-driver/mysql, which is pure Go.
var errNoCGO = errors.New("dolt: embedded mode requires building with CGO_ENABLED=1 (use ServerMode against a running dolt sql-server instead)")

func openEmbedded(cfg Config) (*sql.DB, error) {
	return nil, errNoCGO
}
