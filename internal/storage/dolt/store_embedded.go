//go:build cgo

package dolt

import (
	"database/sql"
	"fmt"

	"github.com/dolthub/driver"
)

// openEmbedded opens Dolt in-process via github.com/dolthub/driver. This is
// the only piece of the package that requires CGO; everything else (server
// mode, migrations, the Storage/Transaction implementation) is plain Go and
// lives outside this build-tagged file, mirroring the teacher's split
// between its CGO embedded path and its pure-Go server path.
func openEmbedded(cfg Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s",
		cfg.Path, cfg.CommitterName, cfg.CommitterEmail, cfg.Database)
	return sql.Open(driver.DriverName, connStr)
}
