package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/db"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
	"github.com/angelmondragon/packfinderz-events/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// dbCommand runs against a live Postgres schema.
type dbCommand func(ctx context.Context, runner *migrate.Runner, opts options, out io.Writer) error

var dbCommands = map[string]dbCommand{
	"up": func(ctx context.Context, runner *migrate.Runner, _ options, out io.Writer) error {
		applied, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "applied %d migration(s)\n", applied)
		return nil
	},
	"down": func(ctx context.Context, runner *migrate.Runner, _ options, _ io.Writer) error {
		return runner.Down(ctx)
	},
	"status": func(ctx context.Context, runner *migrate.Runner, _ options, out io.Writer) error {
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(out, statuses)
	},
	"version": func(ctx context.Context, runner *migrate.Runner, opts options, out io.Writer) error {
		if opts.version == "" {
			v, err := runner.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "current version: %d\n", v)
			return nil
		}
		return runner.MigrateTo(ctx, opts.version)
	},
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: migrations embedded in the binary; create uses "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version; empty prints the current version")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	// Commands that do NOT require config or a database.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created migration:", path)
		return nil

	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Fprintln(out, "migration validation passed")
		return nil
	}

	command, ok := dbCommands[opts.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if err := cfg.DB.ResolveDSN(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	if dbClient.Driver() != config.DBDriverPostgres {
		return fmt.Errorf("goose migrations require postgres (driver %q is auto-migrated at startup)", dbClient.Driver())
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, dbClient.Driver(), migrate.Source(opts.dir), logg)
	if err != nil {
		return err
	}

	logg.Info(ctx, "migrate ready")
	return command(ctx, runner, opts, out)
}

func printStatus(out io.Writer, statuses []migrate.Status) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		state, appliedAt := "pending", "-"
		if s.Applied {
			state = "applied"
			appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, state, appliedAt, s.File)
	}
	return tw.Flush()
}
