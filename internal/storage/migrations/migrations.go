// Package migrations applies the schema each store's EnsureSchema method
// otherwise creates ad hoc, through golang-migrate so deployments get a
// versioned, reviewable upgrade path instead of implicit CREATE TABLE IF
// NOT EXISTS calls racing on first boot.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// logAdapter satisfies migrate.Logger with logrus, kept separate from the
// zap-based pkg/logger used by the rest of the daemon: this is a one-shot
// CLI-style step runner whose functions take no logger argument.
type logAdapter struct {
	entry   *logrus.Entry
	verbose bool
}

func (l logAdapter) Printf(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

func (l logAdapter) Verbose() bool {
	return l.verbose
}

// Up applies every pending migration against databaseURL.
func Up(databaseURL string) error {
	return run(databaseURL, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// Down rolls back every applied migration, used only by operator tooling
// and integration test teardown.
func Down(databaseURL string) error {
	return run(databaseURL, func(m *migrate.Migrate) error {
		return m.Down()
	})
}

// Steps applies n migrations forward (n > 0) or rolls back -n (n < 0).
func Steps(databaseURL string, n int) error {
	return run(databaseURL, func(m *migrate.Migrate) error {
		return m.Steps(n)
	})
}

func run(databaseURL string, op func(*migrate.Migrate) error) error {
	source, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	m.Log = logAdapter{entry: logrus.WithField("component", "migrations")}
	defer m.Close()

	if err := op(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
