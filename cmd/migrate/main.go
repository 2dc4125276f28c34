// Package main provides a CLI tool for running canvas schema migrations.
package main

import (
	"embed"
	"fmt"
	"net/url"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ar4mirez/pixring/internal/config"
)

//go:embed all:sql
var embeddedMigrations embed.FS

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("no command specified")
	}

	switch os.Args[1] {
	case "up":
		return runUp()
	case "down":
		return runDown()
	case "version":
		return runVersion()
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func printUsage() {
	fmt.Println(`canvas schema migration tool

Usage:
  migrate <command>

Commands:
  up       Apply all pending migrations
  down     Roll back one migration
  version  Print the current schema version
  help     Show this message

Connection parameters are read from the same PG_HOST/PG_DBNAME/PG_USER/
PG_PASSWORD/PG_PORT environment variables canvasd uses.`)
}

func newMigrator() (*migrate.Migrate, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	src, err := iofs.New(embeddedMigrations, "sql")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

// migrationURL builds the pgx5://-scheme DSN golang-migrate's pgx
// driver expects from the same PG_* fields canvas.PostgresConfig uses.
func migrationURL(cfg *config.Config) string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(cfg.PGUser), url.QueryEscape(cfg.PGPassword), cfg.PGHost, cfg.PGPort, cfg.PGDBName)
}

func runUp() error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}

func runDown() error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate down: %w", err)
	}
	fmt.Println("one migration rolled back")
	return nil
}

func runVersion() error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	v, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("read version: %w", err)
	}
	fmt.Printf("version: %d, dirty: %t\n", v, dirty)
	return nil
}

func closeMigrator(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		fmt.Fprintf(os.Stderr, "warning: close source: %v\n", srcErr)
	}
	if dbErr != nil {
		fmt.Fprintf(os.Stderr, "warning: close database: %v\n", dbErr)
	}
}
