package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"podcast-api/internal/models"
)

type dataset struct {
	Users    map[string]models.User    `json:"users"`
	Podcasts map[string]models.Podcast `json:"podcasts"`
	Episodes map[string]models.Episode `json:"episodes"`
}

// Storage is the JSON file datastore. Every mutation works on a cloned
// dataset and only replaces the in-memory copy after the file was written,
// so a failed write leaves both untouched.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	now      func() time.Time
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Users:    make(map[string]models.User),
		Podcasts: make(map[string]models.Podcast),
		Episodes: make(map[string]models.Episode),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Podcasts == nil {
		s.data.Podcasts = make(map[string]models.Podcast)
	}
	if s.data.Episodes == nil {
		s.data.Episodes = make(map[string]models.Episode)
	}
}

// NewStorage opens the JSON datastore at path, creating the directory when
// needed. A missing or empty file starts an empty dataset.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		now:      newSettings(opts).now,
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// commitLocked persists next and swaps it in. Callers hold s.mu.
func (s *Storage) commitLocked(next dataset) error {
	if err := s.persistDataset(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	for id, user := range src.Users {
		clone.Users[id] = user
	}
	for id, podcast := range src.Podcasts {
		clone.Podcasts[id] = podcast
	}
	for id, episode := range src.Episodes {
		clone.Episodes[id] = episode
	}
	return clone
}

// Ping reports whether the data directory is still reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.filePath)); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

// Users

func (s *Storage) emailTakenLocked(data dataset, email, exceptID string) bool {
	for id, user := range data.Users {
		if id != exceptID && user.Email == email {
			return true
		}
	}
	return false
}

func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if !params.Role.Valid() {
		return models.User{}, fmt.Errorf("invalid role %q", params.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(s.data, email, "") {
		return models.User{}, ErrEmailTaken
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	now := s.now()
	user := models.User{
		ID:           id,
		Nom:          strings.TrimSpace(params.Nom),
		Prenom:       strings.TrimSpace(params.Prenom),
		Email:        email,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	next := cloneDataset(s.data)
	next.Users[id] = user
	if err := s.commitLocked(next); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, nil
}

// FindUserByEmail looks up a user by their normalized email address.
func (s *Storage) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	normalized := normalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Email == normalized {
			return user, nil
		}
	}
	return models.User{}, fmt.Errorf("user with email %s: %w", normalized, ErrNotFound)
}

func (s *Storage) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return createdBefore(users[i].CreatedAt, users[i].ID, users[j].CreatedAt, users[j].ID)
	})
	return users, nil
}

// UpdateUser mutates user metadata while enforcing email uniqueness.
func (s *Storage) UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneDataset(s.data)
	user, ok := next.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if update.Nom != nil {
		user.Nom = strings.TrimSpace(*update.Nom)
	}
	if update.Prenom != nil {
		user.Prenom = strings.TrimSpace(*update.Prenom)
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		if s.emailTakenLocked(next, email, id) {
			return models.User{}, ErrEmailTaken
		}
		user.Email = email
	}
	if update.Role != nil {
		if !update.Role.Valid() {
			return models.User{}, fmt.Errorf("invalid role %q", *update.Role)
		}
		user.Role = *update.Role
	}
	user.UpdatedAt = s.now()

	next.Users[id] = user
	if err := s.commitLocked(next); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) SetUserPassword(ctx context.Context, id, passwordHash string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	if passwordHash == "" {
		return models.User{}, errors.New("password hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneDataset(s.data)
	user, ok := next.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = s.now()
	next.Users[id] = user
	if err := s.commitLocked(next); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// DeleteUser removes the user together with the podcasts they own and the
// episodes of those podcasts.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneDataset(s.data)
	if _, ok := next.Users[id]; !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	delete(next.Users, id)
	for podcastID, podcast := range next.Podcasts {
		if podcast.UserID == id {
			deletePodcastLocked(next, podcastID)
		}
	}
	return s.commitLocked(next)
}

// Podcasts

func (s *Storage) CreatePodcast(ctx context.Context, params CreatePodcastParams) (models.Podcast, error) {
	if err := ctx.Err(); err != nil {
		return models.Podcast{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.UserID]; !ok {
		return models.Podcast{}, fmt.Errorf("owner %s: %w", params.UserID, ErrNotFound)
	}
	id, err := generateID()
	if err != nil {
		return models.Podcast{}, err
	}
	now := s.now()
	podcast := models.Podcast{
		ID:          id,
		Titre:       strings.TrimSpace(params.Titre),
		Categorie:   strings.TrimSpace(params.Categorie),
		Description: params.Description,
		Image:       params.Image,
		UserID:      params.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	next := cloneDataset(s.data)
	next.Podcasts[id] = podcast
	if err := s.commitLocked(next); err != nil {
		return models.Podcast{}, err
	}
	return podcast, nil
}

func (s *Storage) GetPodcast(ctx context.Context, id string) (models.Podcast, error) {
	if err := ctx.Err(); err != nil {
		return models.Podcast{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	podcast, ok := s.data.Podcasts[id]
	if !ok {
		return models.Podcast{}, fmt.Errorf("podcast %s: %w", id, ErrNotFound)
	}
	return podcast, nil
}

func (s *Storage) ListPodcasts(ctx context.Context, filter PodcastFilter) ([]models.Podcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := newMatcher()
	podcasts := make([]models.Podcast, 0, len(s.data.Podcasts))
	for _, podcast := range s.data.Podcasts {
		if filter.OwnerID != "" && podcast.UserID != filter.OwnerID {
			continue
		}
		if !match.contains(filter.Titre, podcast.Titre) || !match.contains(filter.Categorie, podcast.Categorie) {
			continue
		}
		owner, ok := s.data.Users[podcast.UserID]
		if !match.matchesOwner(filter.Animateur, owner, ok) {
			continue
		}
		podcasts = append(podcasts, podcast)
	}
	sort.Slice(podcasts, func(i, j int) bool {
		return createdBefore(podcasts[i].CreatedAt, podcasts[i].ID, podcasts[j].CreatedAt, podcasts[j].ID)
	})
	return podcasts, nil
}

func (s *Storage) UpdatePodcast(ctx context.Context, id string, update PodcastUpdate) (models.Podcast, error) {
	if err := ctx.Err(); err != nil {
		return models.Podcast{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneDataset(s.data)
	podcast, ok := next.Podcasts[id]
	if !ok {
		return models.Podcast{}, fmt.Errorf("podcast %s: %w", id, ErrNotFound)
	}
	if update.Titre != nil {
		podcast.Titre = strings.TrimSpace(*update.Titre)
	}
	if update.Categorie != nil {
		podcast.Categorie = strings.TrimSpace(*update.Categorie)
	}
	if update.Description != nil {
		podcast.Description = *update.Description
	}
	if update.Image != nil {
		podcast.Image = *update.Image
	}
	podcast.UpdatedAt = s.now()
	next.Podcasts[id] = podcast
	if err := s.commitLocked(next); err != nil {
		return models.Podcast{}, err
	}
	return podcast, nil
}

// DeletePodcast removes the podcast and its episodes.
func (s *Storage) DeletePodcast(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneDataset(s.data)
	if _, ok := next.Podcasts[id]; !ok {
		return fmt.Errorf("podcast %s: %w", id, ErrNotFound)
	}
	deletePodcastLocked(next, id)
	return s.commitLocked(next)
}

func deletePodcastLocked(data dataset, podcastID string) {
	delete(data.Podcasts, podcastID)
	for episodeID, episode := range data.Episodes {
		if episode.PodcastID == podcastID {
			delete(data.Episodes, episodeID)
		}
	}
}

// Episodes

func (s *Storage) CreateEpisode(ctx context.Context, params CreateEpisodeParams) (models.Episode, error) {
	if err := ctx.Err(); err != nil {
		return models.Episode{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Podcasts[params.PodcastID]; !ok {
		return models.Episode{}, fmt.Errorf("podcast %s: %w", params.PodcastID, ErrNotFound)
	}
	id, err := generateID()
	if err != nil {
		return models.Episode{}, err
	}
	now := s.now()
	episode := models.Episode{
		ID:          id,
		Titre:       strings.TrimSpace(params.Titre),
		Description: params.Description,
		Audio:       params.Audio,
		PodcastID:   params.PodcastID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	next := cloneDataset(s.data)
	next.Episodes[id] = episode
	if err := s.commitLocked(next); err != nil {
		return models.Episode{}, err
	}
	return episode, nil
}

func (s *Storage) GetEpisode(ctx context.Context, id string) (models.Episode, error) {
	if err := ctx.Err(); err != nil {
		return models.Episode{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	episode, ok := s.data.Episodes[id]
	if !ok {
		return models.Episode{}, fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	return episode, nil
}

func (s *Storage) ListEpisodes(ctx context.Context, filter EpisodeFilter) ([]models.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := newMatcher()
	episodes := make([]models.Episode, 0, len(s.data.Episodes))
	for _, episode := range s.data.Episodes {
		if filter.PodcastID != "" && episode.PodcastID != filter.PodcastID {
			continue
		}
		if !match.contains(filter.Titre, episode.Titre) {
			continue
		}
		podcast, hasPodcast := s.data.Podcasts[episode.PodcastID]
		if strings.TrimSpace(filter.Podcast) != "" && (!hasPodcast || !match.contains(filter.Podcast, podcast.Titre)) {
			continue
		}
		if strings.TrimSpace(filter.Animateur) != "" {
			if !hasPodcast {
				continue
			}
			owner, ok := s.data.Users[podcast.UserID]
			if !match.matchesOwner(filter.Animateur, owner, ok) {
				continue
			}
		}
		episodes = append(episodes, episode)
	}
	sort.Slice(episodes, func(i, j int) bool {
		return createdBefore(episodes[i].CreatedAt, episodes[i].ID, episodes[j].CreatedAt, episodes[j].ID)
	})
	return episodes, nil
}

func (s *Storage) UpdateEpisode(ctx context.Context, id string, update EpisodeUpdate) (models.Episode, error) {
	if err := ctx.Err(); err != nil {
		return models.Episode{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneDataset(s.data)
	episode, ok := next.Episodes[id]
	if !ok {
		return models.Episode{}, fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	if update.Titre != nil {
		episode.Titre = strings.TrimSpace(*update.Titre)
	}
	if update.Description != nil {
		episode.Description = *update.Description
	}
	if update.Audio != nil {
		episode.Audio = *update.Audio
	}
	episode.UpdatedAt = s.now()
	next.Episodes[id] = episode
	if err := s.commitLocked(next); err != nil {
		return models.Episode{}, err
	}
	return episode, nil
}

func (s *Storage) DeleteEpisode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneDataset(s.data)
	if _, ok := next.Episodes[id]; !ok {
		return fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	delete(next.Episodes, id)
	return s.commitLocked(next)
}

func createdBefore(a time.Time, aID string, b time.Time, bID string) bool {
	if a.Equal(b) {
		return aID < bID
	}
	return a.Before(b)
}
