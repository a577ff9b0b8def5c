// migrate manages the Postgres schema for principals and invites.
//
//	migrate [up|down|version]
//
// The command defaults to up. version prints the applied migration and whether it is dirty.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"chat-credential-engine/internal/config"
	"chat-credential-engine/internal/db/migrate"
	"chat-credential-engine/internal/logging"
)

const usage = "usage: migrate [up|down|version]"

// schema is the subset of the migrate package the command drives.
type schema struct {
	apply   func(dsn, direction string) error
	version func(dsn string) (uint, bool, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	s := schema{apply: migrate.Run, version: migrate.Version}
	if err := run(os.Args[1:], cfg.DatabaseURL, s, os.Stdout, logger); err != nil {
		logger.Error("migrate failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(args []string, dsn string, s schema, out io.Writer, logger *zap.Logger) error {
	cmd := migrate.Up
	switch len(args) {
	case 0:
	case 1:
		cmd = args[0]
	default:
		return errors.New(usage)
	}
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}

	switch cmd {
	case migrate.Up, migrate.Down:
		if err := s.apply(dsn, cmd); err != nil {
			return err
		}
		logger.Info("schema migrated", zap.String("direction", cmd))
		return nil
	case "version":
		v, dirty, err := s.version(dsn)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version=%d dirty=%t\n", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q; %s", cmd, usage)
	}
}
