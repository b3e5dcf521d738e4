package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"podcast-api/internal/auth"
	"podcast-api/internal/media"
	"podcast-api/internal/models"
	"podcast-api/internal/policy"
	"podcast-api/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

type fakeUploader struct {
	mu    sync.Mutex
	files []media.File
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, file media.File) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	if file.Reader != nil {
		if _, err := io.Copy(io.Discard, file.Reader); err != nil {
			return "", err
		}
	}
	u.files = append(u.files, file)
	return "https://cdn.test/" + string(file.Kind) + "/" + file.Filename, nil
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.files)
}

type recordingObserver struct {
	mu        sync.Mutex
	decisions []policy.Action
	uploads   []error
}

func (o *recordingObserver) ObserveDecision(action policy.Action, _ policy.Decision) {
	o.mu.Lock()
	o.decisions = append(o.decisions, action)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveUpload(_ media.Kind, _ time.Duration, err error) {
	o.mu.Lock()
	o.uploads = append(o.uploads, err)
	o.mu.Unlock()
}

func (o *recordingObserver) count(action policy.Action) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, a := range o.decisions {
		if a == action {
			n++
		}
	}
	return n
}

type fixture struct {
	svc      *Services
	repo     storage.Repository
	sessions *auth.SessionManager
	hasher   auth.BcryptHasher
	uploader *fakeUploader
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewJSONRepository(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewJSONRepository: %v", err)
	}
	return newFixtureWithRepo(t, repo)
}

func newFixtureWithRepo(t *testing.T, repo storage.Repository) *fixture {
	t.Helper()
	f := &fixture{
		repo:     repo,
		sessions: auth.NewSessionManager(time.Hour),
		hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		uploader: &fakeUploader{},
		observer: &recordingObserver{},
	}
	f.svc = New(repo, f.sessions, f.hasher, Options{Uploader: f.uploader, Observer: f.observer})
	return f
}

func (f *fixture) user(t *testing.T, prenom, nom string, role models.Role) models.User {
	t.Helper()
	hash, err := f.hasher.Hash("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := f.repo.CreateUser(context.Background(), storage.CreateUserParams{
		Nom:          nom,
		Prenom:       prenom,
		Email:        strings.ToLower(prenom) + "@example.com",
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func (f *fixture) podcast(t *testing.T, owner models.User, titre string) models.Podcast {
	t.Helper()
	podcast, err := f.repo.CreatePodcast(context.Background(), storage.CreatePodcastParams{
		Titre:     titre,
		Categorie: "Tech",
		UserID:    owner.ID,
	})
	if err != nil {
		t.Fatalf("CreatePodcast: %v", err)
	}
	return podcast
}

func (f *fixture) episode(t *testing.T, podcast models.Podcast, titre string) models.Episode {
	t.Helper()
	episode, err := f.repo.CreateEpisode(context.Background(), storage.CreateEpisodeParams{
		Titre:     titre,
		Audio:     "https://cdn.test/audio/" + titre + ".mp3",
		PodcastID: podcast.ID,
	})
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}
	return episode
}

func str(s string) *string { return &s }

func imageFile(name string, size int64) *Attachment {
	return &Attachment{File: &media.File{Filename: name, Size: size, Reader: strings.NewReader("data")}}
}

func audioFile(name string) *Attachment {
	return &Attachment{File: &media.File{Filename: name, Size: 4, Reader: strings.NewReader("data")}}
}

func expectValidation(t *testing.T, err error, fields ...string) *ValidationError {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range fields {
		if !verr.Fields.Has(field) {
			t.Fatalf("expected error on %q, got %v", field, verr.Fields)
		}
	}
	return verr
}
