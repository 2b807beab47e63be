package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/db"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/migrate"
)

// dbCommand runs against a live connection.
type dbCommand func(ctx context.Context, sqlDB *sql.DB, driver string) error

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory used by create and validate")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		if *name == "" {
			exit("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exit("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exit("migration validation failed: %v", err)
		}
		if err := migrate.ValidateEmbedded(); err != nil {
			exit("embedded migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	commands := map[string]dbCommand{
		"up": func(ctx context.Context, sqlDB *sql.DB, driver string) error {
			return migrate.Run(ctx, sqlDB, driver, "up")
		},
		"down": func(ctx context.Context, sqlDB *sql.DB, driver string) error {
			return migrate.Run(ctx, sqlDB, driver, "down")
		},
		"status": func(ctx context.Context, sqlDB *sql.DB, driver string) error {
			return migrate.Run(ctx, sqlDB, driver, "status")
		},
		"version": func(ctx context.Context, sqlDB *sql.DB, driver string) error {
			if *version == "" {
				return fmt.Errorf("missing -version for version command")
			}
			return migrate.MigrateToVersion(ctx, sqlDB, driver, *version)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		exit("unknown -cmd value %q (want one of %s, create, validate)", *cmd, strings.Join(commandNames(commands), ", "))
	}

	cfg, err := config.LoadMigrate()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	if !cfg.DB.Enabled() {
		exit("%s is required for -cmd=%s", config.EnvDBDSN, *cmd)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to extract sql.DB", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.Env,
		"cmd":    *cmd,
		"driver": dbClient.Dialect(),
	})
	logg.Info(ctx, "migrate ready")

	if err := run(ctx, sqlDB, dbClient.Dialect()); err != nil {
		logg.Error(ctx, "migration command failed", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration command completed")
}

func commandNames(commands map[string]dbCommand) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
