package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/tuannvm/multiagent-rag/internal/ragerr"
)

// Migrate applies every pending migration under migrationsPath to dsn;
// failures are reported as Fatal. cmd/ragd does not call it.
func Migrate(dsn, migrationsPath string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), dsn)
	if err != nil {
		return ragerr.Wrap(ragerr.Fatal, "store: open migrator", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return ragerr.Wrap(ragerr.Fatal, "store: apply migrations", err)
	}
	return nil
}
