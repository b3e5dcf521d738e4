// Command bootstrap-admin creates an administrator account, or promotes the
// account already registered with that email and resets its password.
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
	"time"

	"podcast-api/internal/auth"
	"podcast-api/internal/service"
	"podcast-api/internal/storage"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bootstrap-admin", flag.ContinueOnError)
	fs.SetOutput(out)
	jsonPath := fs.String("json", "", "path to the JSON datastore (store.json)")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres connection string")
	nom := fs.String("nom", "", "administrator last name")
	prenom := fs.String("prenom", "", "administrator first name")
	email := fs.String("email", "", "administrator email")
	password := fs.String("password", "", "administrator password (at least 8 characters)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if (*jsonPath == "") == (*postgresDSN == "") {
		return errors.New("exactly one of --json or --postgres-dsn must be provided")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	repo, sessions, closeAll, err := open(ctx, *jsonPath, *postgresDSN)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer closeAll()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services := service.New(repo, sessions, auth.NewBcryptHasher(0), service.Options{Logger: logger})
	user, created, err := services.Users.BootstrapAdministrator(ctx, service.AdminSeed{
		Nom:      *nom,
		Prenom:   *prenom,
		Email:    *email,
		Password: *password,
	})
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid administrator: %s", describe(verr))
		}
		return fmt.Errorf("bootstrap administrator: %w", err)
	}

	state := "promoted"
	if created {
		state = "created"
	}
	fmt.Fprintf(out, "Administrator %s %s <%s> %s.\n", user.Prenom, user.Nom, user.Email, state)
	if !created {
		fmt.Fprintln(out, "Existing sessions for this account were revoked.")
	}
	return nil
}

// open returns the repository and a session manager on the same backend so
// revocations reach the running API when it uses Postgres sessions.
func open(ctx context.Context, jsonPath, dsn string) (storage.Repository, *auth.SessionManager, func(), error) {
	if jsonPath != "" {
		repo, err := storage.NewJSONRepository(jsonPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, auth.NewSessionManager(0), func() {}, nil
	}

	repo, err := storage.NewPostgresRepository(ctx, dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := auth.NewPostgresSessionStoreFromPool(ctx, repo.Pool())
	if err != nil {
		_ = repo.Close(context.Background())
		return nil, nil, nil, err
	}
	closeAll := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = repo.Close(closeCtx)
	}
	return repo, auth.NewSessionManager(0, auth.WithStore(store)), closeAll, nil
}

func describe(err *service.ValidationError) string {
	parts := make([]string, 0, len(err.Fields))
	for _, field := range err.Fields.Names() {
		parts = append(parts, field+": "+strings.Join(err.Fields[field], ", "))
	}
	return strings.Join(parts, "; ")
}
