// Command migrate applies the SQL migrations under migrations/ to a
// PostgreSQL database. SQLite deployments bootstrap their schema in-process
// and do not need this tool.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	dsn := flag.String("database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (falls back to DATABASE_URL)")
	path := flag.String("path", "migrations", "Migrations directory")
	cmd := flag.String("command", "up", "One of: up, down, version, force")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("database URL required: pass -database or set DATABASE_URL")
	}

	m, err := migrate.New("file://"+*path, *dsn)
	if err != nil {
		log.Fatalf("migrate init: %v", err)
	}
	defer m.Close()

	if err := run(m, *cmd, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(m *migrate.Migrate, cmd string, args []string) error {
	switch cmd {
	case "up":
		if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
			log.Println("schema already up to date")
		} else if err != nil {
			return fmt.Errorf("up: %w", err)
		} else {
			log.Println("migrations applied")
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("down: %w", err)
		}
		log.Println("migrations rolled back")
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}
		log.Printf("version %d (dirty=%v)", v, dirty)
	case "force":
		if len(args) == 0 {
			return errors.New("force needs a version argument")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force: %w", err)
		}
		log.Printf("forced version to %d", v)
	default:
		return fmt.Errorf("unknown command %q (use up, down, version, force)", cmd)
	}
	return nil
}
