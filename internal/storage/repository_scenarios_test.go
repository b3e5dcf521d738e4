package storage

import (
	"context"
	"errors"
	"testing"

	"podcast-api/internal/models"
)

// RepositoryFactory constructs a repository backed by either the JSON store or
// Postgres implementation for cross-datastore scenario assertions.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	if factory == nil {
		t.Fatal("repository factory is required")
	}
	repo, cleanup, err := factory(t, opts...)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if repo == nil {
		t.Fatal("repository factory returned nil repository")
	}
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}

func mustCreateUser(t *testing.T, repo Repository, nom, prenom, email string, role models.Role) models.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), CreateUserParams{
		Nom:          nom,
		Prenom:       prenom,
		Email:        email,
		PasswordHash: "hash",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", email, err)
	}
	return user
}

func mustCreatePodcast(t *testing.T, repo Repository, owner models.User, titre, categorie string) models.Podcast {
	t.Helper()
	podcast, err := repo.CreatePodcast(context.Background(), CreatePodcastParams{
		Titre:       titre,
		Categorie:   categorie,
		Description: "Une description assez longue",
		UserID:      owner.ID,
	})
	if err != nil {
		t.Fatalf("CreatePodcast %s: %v", titre, err)
	}
	return podcast
}

func mustCreateEpisode(t *testing.T, repo Repository, podcast models.Podcast, titre string) models.Episode {
	t.Helper()
	episode, err := repo.CreateEpisode(context.Background(), CreateEpisodeParams{
		Titre:     titre,
		Audio:     "https://cdn.example.com/" + titre + ".mp3",
		PodcastID: podcast.ID,
	})
	if err != nil {
		t.Fatalf("CreateEpisode %s: %v", titre, err)
	}
	return episode
}

// RunRepositoryUserLifecycle covers creation, lookup, uniqueness and update.
func RunRepositoryUserLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	user := mustCreateUser(t, repo, "Salma", "ElQadi", "  Salma@Gmail.com ", models.RoleAdministrator)
	if user.ID == "" {
		t.Fatal("expected generated id")
	}
	if user.Email != "salma@gmail.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.CreatedAt.IsZero() || !user.CreatedAt.Equal(user.UpdatedAt) {
		t.Fatalf("expected matching timestamps, got %v / %v", user.CreatedAt, user.UpdatedAt)
	}

	if _, err := repo.CreateUser(ctx, CreateUserParams{Nom: "X", Prenom: "Y", Email: "SALMA@gmail.com", Role: models.RoleListener}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	found, err := repo.FindUserByEmail(ctx, "salma@GMAIL.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, found.ID)
	}
	if _, err := repo.FindUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	host := mustCreateUser(t, repo, "Benali", "Karim", "karim@example.com", models.RoleHost)
	mustCreateUser(t, repo, "Durand", "Lea", "lea@example.com", models.RoleListener)

	hosts, err := repo.ListUsers(ctx, UserFilter{Role: models.RoleHost})
	if err != nil {
		t.Fatalf("ListUsers hosts: %v", err)
	}
	if len(hosts) != 1 || hosts[0].ID != host.ID {
		t.Fatalf("expected only the host, got %+v", hosts)
	}
	all, err := repo.ListUsers(ctx, UserFilter{})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(all) != 3 || all[0].ID != user.ID {
		t.Fatalf("expected three users ordered by creation, got %+v", all)
	}

	nom := "Benali-Haddad"
	role := models.RoleAdministrator
	updated, err := repo.UpdateUser(ctx, host.ID, UserUpdate{Nom: &nom, Role: &role})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Nom != nom || updated.Role != role || updated.Prenom != "Karim" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(host.UpdatedAt) {
		t.Fatalf("expected updated_at to move forward")
	}

	taken := "lea@example.com"
	if _, err := repo.UpdateUser(ctx, host.ID, UserUpdate{Email: &taken}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken on update, got %v", err)
	}
	same := "KARIM@example.com"
	if _, err := repo.UpdateUser(ctx, host.ID, UserUpdate{Email: &same}); err != nil {
		t.Fatalf("expected keeping own email to succeed, got %v", err)
	}

	if _, err := repo.SetUserPassword(ctx, host.ID, "new-hash"); err != nil {
		t.Fatalf("SetUserPassword: %v", err)
	}
	reloaded, err := repo.GetUser(ctx, host.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if reloaded.PasswordHash != "new-hash" {
		t.Fatalf("expected password hash to change, got %q", reloaded.PasswordHash)
	}

	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.UpdateUser(ctx, "missing", UserUpdate{Nom: &nom}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := repo.DeleteUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

// RunRepositoryPodcastLifecycle covers podcast and episode CRUD.
func RunRepositoryPodcastLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	host := mustCreateUser(t, repo, "Benali", "Karim", "karim@example.com", models.RoleHost)
	if _, err := repo.CreatePodcast(ctx, CreatePodcastParams{Titre: "Orphan", Categorie: "Tech", UserID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}

	podcast := mustCreatePodcast(t, repo, host, "Tech Talk", "Technologie")
	if podcast.UserID != host.ID {
		t.Fatalf("expected owner %s, got %s", host.ID, podcast.UserID)
	}

	titre := "Tech Talk Hebdo"
	image := "https://cdn.example.com/cover.png"
	updated, err := repo.UpdatePodcast(ctx, podcast.ID, PodcastUpdate{Titre: &titre, Image: &image})
	if err != nil {
		t.Fatalf("UpdatePodcast: %v", err)
	}
	if updated.Titre != titre || updated.Image != image || updated.Categorie != "Technologie" {
		t.Fatalf("unexpected podcast after update: %+v", updated)
	}

	if _, err := repo.CreateEpisode(ctx, CreateEpisodeParams{Titre: "Lost", Audio: "a.mp3", PodcastID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown podcast, got %v", err)
	}
	first := mustCreateEpisode(t, repo, podcast, "Episode 1")
	second := mustCreateEpisode(t, repo, podcast, "Episode 2")

	episodes, err := repo.ListEpisodes(ctx, EpisodeFilter{PodcastID: podcast.ID})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(episodes) != 2 || episodes[0].ID != first.ID || episodes[1].ID != second.ID {
		t.Fatalf("expected both episodes in creation order, got %+v", episodes)
	}

	audio := "https://cdn.example.com/remaster.wav"
	changed, err := repo.UpdateEpisode(ctx, first.ID, EpisodeUpdate{Audio: &audio})
	if err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}
	if changed.Audio != audio || changed.Titre != "Episode 1" || changed.PodcastID != podcast.ID {
		t.Fatalf("unexpected episode after update: %+v", changed)
	}

	if err := repo.DeleteEpisode(ctx, second.ID); err != nil {
		t.Fatalf("DeleteEpisode: %v", err)
	}
	if _, err := repo.GetEpisode(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted episode to be gone, got %v", err)
	}
	if err := repo.DeleteEpisode(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

// RunRepositoryCascadingDeletes checks that removing a podcast drops its
// episodes and removing a user drops everything they own.
func RunRepositoryCascadingDeletes(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	host := mustCreateUser(t, repo, "Benali", "Karim", "karim@example.com", models.RoleHost)
	other := mustCreateUser(t, repo, "Martin", "Sophie", "sophie@example.com", models.RoleHost)

	kept := mustCreatePodcast(t, repo, other, "Histoire", "Culture")
	keptEpisode := mustCreateEpisode(t, repo, kept, "Rome")

	doomed := mustCreatePodcast(t, repo, host, "Tech Talk", "Technologie")
	doomedEpisode := mustCreateEpisode(t, repo, doomed, "Go")
	if err := repo.DeletePodcast(ctx, doomed.ID); err != nil {
		t.Fatalf("DeletePodcast: %v", err)
	}
	if _, err := repo.GetEpisode(ctx, doomedEpisode.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected episode to cascade with podcast, got %v", err)
	}

	second := mustCreatePodcast(t, repo, host, "Science", "Sciences")
	secondEpisode := mustCreateEpisode(t, repo, second, "Atomes")
	if err := repo.DeleteUser(ctx, host.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := repo.GetPodcast(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected podcast to cascade with owner, got %v", err)
	}
	if _, err := repo.GetEpisode(ctx, secondEpisode.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected episode to cascade with owner, got %v", err)
	}

	if _, err := repo.GetPodcast(ctx, kept.ID); err != nil {
		t.Fatalf("expected unrelated podcast to survive, got %v", err)
	}
	if _, err := repo.GetEpisode(ctx, keptEpisode.ID); err != nil {
		t.Fatalf("expected unrelated episode to survive, got %v", err)
	}
}

// RunRepositorySearch checks case-insensitive substring filters combined
// with AND.
func RunRepositorySearch(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	karim := mustCreateUser(t, repo, "Benali", "Karim", "karim@example.com", models.RoleHost)
	sophie := mustCreateUser(t, repo, "Martin", "Sophie", "sophie@example.com", models.RoleHost)

	techTalk := mustCreatePodcast(t, repo, karim, "Tech Talk", "Technologie")
	techNews := mustCreatePodcast(t, repo, sophie, "Tech News", "Actualité")
	histoire := mustCreatePodcast(t, repo, sophie, "Histoire 100%", "Culture")

	mustCreateEpisode(t, repo, techTalk, "Les bases de Go")
	goNews := mustCreateEpisode(t, repo, techNews, "Go 1.24 est sorti")
	mustCreateEpisode(t, repo, histoire, "Rome antique")

	podcastCases := []struct {
		name   string
		filter PodcastFilter
		want   []string
	}{
		{"no filters", PodcastFilter{}, []string{techTalk.ID, techNews.ID, histoire.ID}},
		{"title case-insensitive", PodcastFilter{Titre: "tech"}, []string{techTalk.ID, techNews.ID}},
		{"title and category", PodcastFilter{Titre: "TECH", Categorie: "techno"}, []string{techTalk.ID}},
		{"host by last name", PodcastFilter{Animateur: "martin"}, []string{techNews.ID, histoire.ID}},
		{"host by full name", PodcastFilter{Animateur: "karim benali"}, []string{techTalk.ID}},
		{"host and title", PodcastFilter{Titre: "tech", Animateur: "sophie"}, []string{techNews.ID}},
		{"wildcards are literal", PodcastFilter{Titre: "100%"}, []string{histoire.ID}},
		{"underscore is literal", PodcastFilter{Titre: "Tech_Talk"}, nil},
		{"no match", PodcastFilter{Titre: "cuisine"}, nil},
		{"owner filter", PodcastFilter{OwnerID: karim.ID}, []string{techTalk.ID}},
	}
	for _, tc := range podcastCases {
		t.Run("podcasts/"+tc.name, func(t *testing.T) {
			got, err := repo.ListPodcasts(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListPodcasts: %v", err)
			}
			assertPodcastIDs(t, got, tc.want)
		})
	}

	episodeCases := []struct {
		name   string
		filter EpisodeFilter
		want   int
	}{
		{"title", EpisodeFilter{Titre: "go"}, 2},
		{"podcast title", EpisodeFilter{Podcast: "news"}, 1},
		{"host", EpisodeFilter{Animateur: "BENALI"}, 1},
		{"title and host", EpisodeFilter{Titre: "go", Animateur: "sophie"}, 1},
		{"title and podcast mismatch", EpisodeFilter{Titre: "rome", Podcast: "tech"}, 0},
	}
	for _, tc := range episodeCases {
		t.Run("episodes/"+tc.name, func(t *testing.T) {
			got, err := repo.ListEpisodes(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListEpisodes: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d episodes, got %d (%+v)", tc.want, len(got), got)
			}
		})
	}

	got, err := repo.ListEpisodes(ctx, EpisodeFilter{Titre: "1.24", Podcast: "tech", Animateur: "martin"})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(got) != 1 || got[0].ID != goNews.ID {
		t.Fatalf("expected only %s, got %+v", goNews.ID, got)
	}
}

func assertPodcastIDs(t *testing.T, got []models.Podcast, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d podcasts, got %d (%+v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("expected podcast %d to be %s, got %s", i, want[i], got[i].ID)
		}
	}
}
