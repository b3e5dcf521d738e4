package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"podcast-api/internal/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository on top of a pgx connection pool.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	settings settings
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// embedded schema migrations.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (*PostgresRepository, error) {
	s := newSettings(opts)
	poolCfg, err := s.pool.poolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRepository{pool: pool, settings: s}, nil
}

// Pool exposes the underlying pool so the session store can share it.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// withTimeout applies the acquire timeout to a single repository call. The
// same deadline covers both acquiring the connection and running the query.
func (r *PostgresRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.settings.pool.AcquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.settings.pool.AcquireTimeout)
}

func (r *PostgresRepository) now() time.Time {
	return r.settings.now()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Users

const userColumns = `id, nom, prenom, email, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var role string
	if err := row.Scan(&user.ID, &user.Nom, &user.Prenom, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	user.Role = models.Role(role)
	return user, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if !params.Role.Valid() {
		return models.User{}, fmt.Errorf("invalid role %q", params.Role)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	now := r.now()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (id, nom, prenom, email, password_hash, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING `+userColumns,
		id, strings.TrimSpace(params.Nom), strings.TrimSpace(params.Prenom), email, params.PasswordHash, string(params.Role), now)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	normalized := normalizeEmail(email)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, normalized))
	if err != nil {
		if isNoRows(err) {
			return models.User{}, fmt.Errorf("user with email %s: %w", normalized, ErrNotFound)
		}
		return models.User{}, fmt.Errorf("load user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if filter.Role != "" {
		query += ` WHERE role = $1`
		args = append(args, string(filter.Role))
	}
	query += ` ORDER BY created_at, id`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error) {
	var set setClause
	if update.Nom != nil {
		set.add("nom", strings.TrimSpace(*update.Nom))
	}
	if update.Prenom != nil {
		set.add("prenom", strings.TrimSpace(*update.Prenom))
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		set.add("email", email)
	}
	if update.Role != nil {
		if !update.Role.Valid() {
			return models.User{}, fmt.Errorf("invalid role %q", *update.Role)
		}
		set.add("role", string(*update.Role))
	}
	set.add("updated_at", r.now())

	query, args := set.update("users", userColumns, id)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) SetUserPassword(ctx context.Context, id, passwordHash string) (models.User, error) {
	if passwordHash == "" {
		return models.User{}, errors.New("password hash is required")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	user, err := scanUser(r.pool.QueryRow(ctx, `
UPDATE users SET password_hash = $2, updated_at = $3
WHERE id = $1
RETURNING `+userColumns, id, passwordHash, r.now()))
	if err != nil {
		if isNoRows(err) {
			return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return models.User{}, fmt.Errorf("set user password: %w", err)
	}
	return user, nil
}

// DeleteUser relies on ON DELETE CASCADE to drop owned podcasts and their
// episodes.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "users", "user", id)
}

// Podcasts

const podcastColumns = `id, titre, categorie, description, image, user_id, created_at, updated_at`

func scanPodcast(row pgx.Row) (models.Podcast, error) {
	var podcast models.Podcast
	err := row.Scan(&podcast.ID, &podcast.Titre, &podcast.Categorie, &podcast.Description, &podcast.Image, &podcast.UserID, &podcast.CreatedAt, &podcast.UpdatedAt)
	return podcast, err
}

func (r *PostgresRepository) CreatePodcast(ctx context.Context, params CreatePodcastParams) (models.Podcast, error) {
	id, err := generateID()
	if err != nil {
		return models.Podcast{}, err
	}
	now := r.now()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	podcast, err := scanPodcast(r.pool.QueryRow(ctx, `
INSERT INTO podcasts (id, titre, categorie, description, image, user_id, created_at, updated_at)
SELECT $1, $2, $3, $4, $5, u.id, $7, $7 FROM users u WHERE u.id = $6
RETURNING `+podcastColumns,
		id, strings.TrimSpace(params.Titre), strings.TrimSpace(params.Categorie), params.Description, params.Image, params.UserID, now))
	if err != nil {
		if isNoRows(err) {
			return models.Podcast{}, fmt.Errorf("owner %s: %w", params.UserID, ErrNotFound)
		}
		return models.Podcast{}, fmt.Errorf("insert podcast: %w", err)
	}
	return podcast, nil
}

func (r *PostgresRepository) GetPodcast(ctx context.Context, id string) (models.Podcast, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	podcast, err := scanPodcast(r.pool.QueryRow(ctx, `SELECT `+podcastColumns+` FROM podcasts WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return models.Podcast{}, fmt.Errorf("podcast %s: %w", id, ErrNotFound)
		}
		return models.Podcast{}, fmt.Errorf("load podcast: %w", err)
	}
	return podcast, nil
}

func (r *PostgresRepository) ListPodcasts(ctx context.Context, filter PodcastFilter) ([]models.Podcast, error) {
	var where whereClause
	if filter.OwnerID != "" {
		where.add("p.user_id = %s", filter.OwnerID)
	}
	if strings.TrimSpace(filter.Titre) != "" {
		where.add(`p.titre ILIKE %s ESCAPE '\'`, likePattern(filter.Titre))
	}
	if strings.TrimSpace(filter.Categorie) != "" {
		where.add(`p.categorie ILIKE %s ESCAPE '\'`, likePattern(filter.Categorie))
	}
	if strings.TrimSpace(filter.Animateur) != "" {
		where.add(ownerMatchSQL, likePattern(filter.Animateur))
	}
	query := `SELECT p.id, p.titre, p.categorie, p.description, p.image, p.user_id, p.created_at, p.updated_at
FROM podcasts p JOIN users u ON u.id = p.user_id` + where.sql() + ` ORDER BY p.created_at, p.id`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	defer rows.Close()

	podcasts := make([]models.Podcast, 0)
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		podcasts = append(podcasts, podcast)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	return podcasts, nil
}

func (r *PostgresRepository) UpdatePodcast(ctx context.Context, id string, update PodcastUpdate) (models.Podcast, error) {
	var set setClause
	if update.Titre != nil {
		set.add("titre", strings.TrimSpace(*update.Titre))
	}
	if update.Categorie != nil {
		set.add("categorie", strings.TrimSpace(*update.Categorie))
	}
	if update.Description != nil {
		set.add("description", *update.Description)
	}
	if update.Image != nil {
		set.add("image", *update.Image)
	}
	set.add("updated_at", r.now())

	query, args := set.update("podcasts", podcastColumns, id)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	podcast, err := scanPodcast(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return models.Podcast{}, fmt.Errorf("podcast %s: %w", id, ErrNotFound)
		}
		return models.Podcast{}, fmt.Errorf("update podcast: %w", err)
	}
	return podcast, nil
}

func (r *PostgresRepository) DeletePodcast(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "podcasts", "podcast", id)
}

// Episodes

const episodeColumns = `id, titre, description, audio, podcast_id, created_at, updated_at`

func scanEpisode(row pgx.Row) (models.Episode, error) {
	var episode models.Episode
	err := row.Scan(&episode.ID, &episode.Titre, &episode.Description, &episode.Audio, &episode.PodcastID, &episode.CreatedAt, &episode.UpdatedAt)
	return episode, err
}

func (r *PostgresRepository) CreateEpisode(ctx context.Context, params CreateEpisodeParams) (models.Episode, error) {
	id, err := generateID()
	if err != nil {
		return models.Episode{}, err
	}
	now := r.now()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	episode, err := scanEpisode(r.pool.QueryRow(ctx, `
INSERT INTO episodes (id, titre, description, audio, podcast_id, created_at, updated_at)
SELECT $1, $2, $3, $4, p.id, $6, $6 FROM podcasts p WHERE p.id = $5
RETURNING `+episodeColumns,
		id, strings.TrimSpace(params.Titre), params.Description, params.Audio, params.PodcastID, now))
	if err != nil {
		if isNoRows(err) {
			return models.Episode{}, fmt.Errorf("podcast %s: %w", params.PodcastID, ErrNotFound)
		}
		return models.Episode{}, fmt.Errorf("insert episode: %w", err)
	}
	return episode, nil
}

func (r *PostgresRepository) GetEpisode(ctx context.Context, id string) (models.Episode, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	episode, err := scanEpisode(r.pool.QueryRow(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return models.Episode{}, fmt.Errorf("episode %s: %w", id, ErrNotFound)
		}
		return models.Episode{}, fmt.Errorf("load episode: %w", err)
	}
	return episode, nil
}

func (r *PostgresRepository) ListEpisodes(ctx context.Context, filter EpisodeFilter) ([]models.Episode, error) {
	var where whereClause
	if filter.PodcastID != "" {
		where.add("e.podcast_id = %s", filter.PodcastID)
	}
	if strings.TrimSpace(filter.Titre) != "" {
		where.add(`e.titre ILIKE %s ESCAPE '\'`, likePattern(filter.Titre))
	}
	if strings.TrimSpace(filter.Podcast) != "" {
		where.add(`p.titre ILIKE %s ESCAPE '\'`, likePattern(filter.Podcast))
	}
	if strings.TrimSpace(filter.Animateur) != "" {
		where.add(ownerMatchSQL, likePattern(filter.Animateur))
	}
	query := `SELECT e.id, e.titre, e.description, e.audio, e.podcast_id, e.created_at, e.updated_at
FROM episodes e
JOIN podcasts p ON p.id = e.podcast_id
JOIN users u ON u.id = p.user_id` + where.sql() + ` ORDER BY e.created_at, e.id`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	episodes := make([]models.Episode, 0)
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, episode)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	return episodes, nil
}

func (r *PostgresRepository) UpdateEpisode(ctx context.Context, id string, update EpisodeUpdate) (models.Episode, error) {
	var set setClause
	if update.Titre != nil {
		set.add("titre", strings.TrimSpace(*update.Titre))
	}
	if update.Description != nil {
		set.add("description", *update.Description)
	}
	if update.Audio != nil {
		set.add("audio", *update.Audio)
	}
	set.add("updated_at", r.now())

	query, args := set.update("episodes", episodeColumns, id)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	episode, err := scanEpisode(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return models.Episode{}, fmt.Errorf("episode %s: %w", id, ErrNotFound)
		}
		return models.Episode{}, fmt.Errorf("update episode: %w", err)
	}
	return episode, nil
}

func (r *PostgresRepository) DeleteEpisode(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "episodes", "episode", id)
}

func (r *PostgresRepository) deleteByID(ctx context.Context, table, kind, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// ownerMatchSQL matches the podcast owner joined as u against one pattern.
const ownerMatchSQL = `(u.nom ILIKE %[1]s ESCAPE '\' OR u.prenom ILIKE %[1]s ESCAPE '\' OR (u.prenom || ' ' || u.nom) ILIKE %[1]s ESCAPE '\' OR (u.nom || ' ' || u.prenom) ILIKE %[1]s ESCAPE '\')`

// whereClause accumulates AND-ed conditions. Each condition is a format
// string whose verbs are replaced by the placeholder of its single argument.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereClause) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// setClause builds the SET list of an UPDATE ... RETURNING statement.
type setClause struct {
	cols []string
	args []any
}

func (s *setClause) add(column string, value any) {
	s.args = append(s.args, value)
	s.cols = append(s.cols, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func (s *setClause) update(table, returning, id string) (string, []any) {
	args := append(append([]any(nil), s.args...), id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s", table, strings.Join(s.cols, ", "), len(args), returning)
	return query, args
}
