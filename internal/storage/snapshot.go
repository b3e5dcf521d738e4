package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jackc/pgx/v5"

	"podcast-api/internal/models"
)

// Snapshot is the full content of a JSON datastore file, keyed by id.
type Snapshot struct {
	Users    map[string]models.User    `json:"users"`
	Podcasts map[string]models.Podcast `json:"podcasts"`
	Episodes map[string]models.Episode `json:"episodes"`
}

// SnapshotCounts summarises a Snapshot before and after an import.
type SnapshotCounts struct {
	Users    int
	Podcasts int
	Episodes int
}

// LoadSnapshotFromJSON reads the file written by the JSON datastore.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(file).Decode(&snapshot); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snapshot.ensureInitialized()
	return &snapshot, nil
}

func (s *Snapshot) ensureInitialized() {
	if s.Users == nil {
		s.Users = make(map[string]models.User)
	}
	if s.Podcasts == nil {
		s.Podcasts = make(map[string]models.Podcast)
	}
	if s.Episodes == nil {
		s.Episodes = make(map[string]models.Episode)
	}
}

func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{Users: len(s.Users), Podcasts: len(s.Podcasts), Episodes: len(s.Episodes)}
}

// Check reports references the Postgres schema would reject: podcasts
// without an owner, episodes without a podcast, invalid roles and duplicate
// emails.
func (s *Snapshot) Check() error {
	var errs []error
	emails := make(map[string]string, len(s.Users))
	for _, id := range sortedKeys(s.Users) {
		user := s.Users[id]
		if !user.Role.Valid() {
			errs = append(errs, fmt.Errorf("user %s has invalid role %q", id, user.Role))
		}
		key := normalizeEmail(user.Email)
		if other, ok := emails[key]; ok {
			errs = append(errs, fmt.Errorf("users %s and %s share email %s", other, id, key))
		}
		emails[key] = id
	}
	for _, id := range sortedKeys(s.Podcasts) {
		if _, ok := s.Users[s.Podcasts[id].UserID]; !ok {
			errs = append(errs, fmt.Errorf("podcast %s references missing user %s", id, s.Podcasts[id].UserID))
		}
	}
	for _, id := range sortedKeys(s.Episodes) {
		if _, ok := s.Podcasts[s.Episodes[id].PodcastID]; !ok {
			errs = append(errs, fmt.Errorf("episode %s references missing podcast %s", id, s.Episodes[id].PodcastID))
		}
	}
	return errors.Join(errs...)
}

// ImportSnapshot copies snapshot into the Postgres repository in a single
// transaction, keeping ids and timestamps. Rows whose id already exists are
// left untouched so the import can be re-run.
func (r *PostgresRepository) ImportSnapshot(ctx context.Context, snapshot *Snapshot) (SnapshotCounts, error) {
	if snapshot == nil {
		return SnapshotCounts{}, fmt.Errorf("snapshot is required")
	}
	snapshot.ensureInitialized()
	if err := snapshot.Check(); err != nil {
		return SnapshotCounts{}, fmt.Errorf("snapshot is inconsistent: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SnapshotCounts{}, fmt.Errorf("begin import: %w", err)
	}
	defer rollbackTx(ctx, tx)

	var inserted SnapshotCounts
	for _, id := range sortedKeys(snapshot.Users) {
		u := snapshot.Users[id]
		tag, err := tx.Exec(ctx, `
			INSERT INTO users (id, nom, prenom, email, password_hash, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			u.ID, u.Nom, u.Prenom, normalizeEmail(u.Email), u.PasswordHash, u.Role.String(), u.CreatedAt.UTC(), u.UpdatedAt.UTC())
		if err != nil {
			return SnapshotCounts{}, fmt.Errorf("import user %s: %w", id, err)
		}
		inserted.Users += int(tag.RowsAffected())
	}
	for _, id := range sortedKeys(snapshot.Podcasts) {
		p := snapshot.Podcasts[id]
		tag, err := tx.Exec(ctx, `
			INSERT INTO podcasts (id, titre, categorie, description, image, user_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Titre, p.Categorie, p.Description, p.Image, p.UserID, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
		if err != nil {
			return SnapshotCounts{}, fmt.Errorf("import podcast %s: %w", id, err)
		}
		inserted.Podcasts += int(tag.RowsAffected())
	}
	for _, id := range sortedKeys(snapshot.Episodes) {
		e := snapshot.Episodes[id]
		tag, err := tx.Exec(ctx, `
			INSERT INTO episodes (id, titre, description, audio, podcast_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.Titre, e.Description, e.Audio, e.PodcastID, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
		if err != nil {
			return SnapshotCounts{}, fmt.Errorf("import episode %s: %w", id, err)
		}
		inserted.Episodes += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return SnapshotCounts{}, fmt.Errorf("commit import: %w", err)
	}
	return inserted, nil
}

// CountRows returns the number of rows per table, used to verify an import.
func (r *PostgresRepository) CountRows(ctx context.Context) (SnapshotCounts, error) {
	var counts SnapshotCounts
	err := r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM podcasts), (SELECT COUNT(*) FROM episodes)`,
	).Scan(&counts.Users, &counts.Podcasts, &counts.Episodes)
	if err != nil {
		return SnapshotCounts{}, fmt.Errorf("count rows: %w", err)
	}
	return counts, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
