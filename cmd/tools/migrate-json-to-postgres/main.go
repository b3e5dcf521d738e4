// Command migrate-json-to-postgres copies a JSON datastore into Postgres,
// keeping ids, password hashes and timestamps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"podcast-api/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(context.Background(), os.Args[1:], logger, os.Stderr); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logger *slog.Logger, usage io.Writer) error {
	fs := flag.NewFlagSet("migrate-json-to-postgres", flag.ContinueOnError)
	fs.SetOutput(usage)
	jsonPath := fs.String("json", "data/store.json", "path to the JSON datastore to migrate")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres connection string")
	dryRun := fs.Bool("dry-run", false, "load and check the snapshot without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dsn := resolveDSN(*postgresDSN, os.Getenv)
	if dsn == "" && !*dryRun {
		return errors.New("postgres DSN required: set --postgres-dsn, PODCASTS_STORAGE__POSTGRES_DSN or DATABASE_URL")
	}

	snapshot, err := storage.LoadSnapshotFromJSON(*jsonPath)
	if err != nil {
		return err
	}
	counts := snapshot.Counts()
	logger.Info("loaded JSON snapshot", "path", *jsonPath, "users", counts.Users, "podcasts", counts.Podcasts, "episodes", counts.Episodes)
	if err := snapshot.Check(); err != nil {
		return fmt.Errorf("snapshot is inconsistent: %w", err)
	}
	if *dryRun {
		logger.Info("dry run complete, nothing written")
		return nil
	}

	repo, err := storage.NewPostgresRepository(ctx, dsn, storage.WithPostgresPool(storage.PostgresPool{ApplicationName: "podcast-api-migrate"}))
	if err != nil {
		return fmt.Errorf("open postgres repository: %w", err)
	}
	defer repo.Close(context.Background())

	inserted, err := repo.ImportSnapshot(ctx, snapshot)
	if err != nil {
		return err
	}
	rows, err := repo.CountRows(ctx)
	if err != nil {
		return err
	}
	if err := verify(counts, rows); err != nil {
		return err
	}
	logger.Info("migration completed",
		"users_inserted", inserted.Users,
		"podcasts_inserted", inserted.Podcasts,
		"episodes_inserted", inserted.Episodes,
	)
	return nil
}

func resolveDSN(flagValue string, getenv func(string) string) string {
	for _, candidate := range []string{flagValue, getenv("PODCASTS_STORAGE__POSTGRES_DSN"), getenv("DATABASE_URL")} {
		if dsn := strings.TrimSpace(candidate); dsn != "" {
			return dsn
		}
	}
	return ""
}

// verify fails when Postgres holds fewer rows than the snapshot. More rows
// are fine since the target may already contain data.
func verify(want, got storage.SnapshotCounts) error {
	var errs []error
	if got.Users < want.Users {
		errs = append(errs, fmt.Errorf("users: expected at least %d, got %d", want.Users, got.Users))
	}
	if got.Podcasts < want.Podcasts {
		errs = append(errs, fmt.Errorf("podcasts: expected at least %d, got %d", want.Podcasts, got.Podcasts))
	}
	if got.Episodes < want.Episodes {
		errs = append(errs, fmt.Errorf("episodes: expected at least %d, got %d", want.Episodes, got.Episodes))
	}
	return errors.Join(errs...)
}
