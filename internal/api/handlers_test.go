package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"podcast-api/internal/auth"
	"podcast-api/internal/media"
	"podcast-api/internal/models"
	"podcast-api/internal/service"
	"podcast-api/internal/storage"
)

type stubUploader struct {
	mu    sync.Mutex
	files []media.File
	err   error
}

func (u *stubUploader) Upload(_ context.Context, file media.File) (string, error) {
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

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	handler  *Handler
	repo     storage.Repository
	sessions *auth.SessionManager
	uploader *stubUploader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewJSONRepository(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewJSONRepository: %v", err)
	}
	sessions := auth.NewSessionManager(time.Hour)
	uploader := &stubUploader{}
	services := service.New(repo, sessions, auth.NewBcryptHasher(bcrypt.MinCost), service.Options{Uploader: uploader})
	return &testEnv{
		handler:  NewHandler(services, repo, sessions),
		repo:     repo,
		sessions: sessions,
		uploader: uploader,
	}
}

func (e *testEnv) user(t *testing.T, prenom string, role models.Role) models.User {
	t.Helper()
	hash, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := e.repo.CreateUser(context.Background(), storage.CreateUserParams{
		Nom:          "Test",
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

func (e *testEnv) podcast(t *testing.T, owner models.User, titre string) models.Podcast {
	t.Helper()
	podcast, err := e.repo.CreatePodcast(context.Background(), storage.CreatePodcastParams{
		Titre:     titre,
		Categorie: "Tech",
		UserID:    owner.ID,
	})
	if err != nil {
		t.Fatalf("CreatePodcast: %v", err)
	}
	return podcast
}

// call routes a single request through a chi router registered on pattern so
// URL parameters resolve. A non-nil user is placed on the request context.
func (e *testEnv) call(t *testing.T, method, pattern, target string, handler http.HandlerFunc, user *models.User, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req == nil {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != nil {
		req = req.WithContext(ContextWithUser(req.Context(), *user, "token-"+user.ID))
	}
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handler)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, fileField, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func TestCreatePodcastJSONAsHost(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "Amina", models.RoleHost)

	req := jsonRequest(t, http.MethodPost, "/podcasts", map[string]any{
		"titre":       "Intro au Go",
		"categorie":   "Tech",
		"description": "Un podcast sur le langage Go.",
		"image":       "https://cdn.test/image/cover.png",
	})
	rec := env.call(t, http.MethodPost, "/podcasts", "", env.handler.CreatePodcast, &host, req)
	expectStatus(t, rec, http.StatusCreated)

	got := decode[podcastResponse](t, rec)
	if got.UserID != host.ID {
		t.Fatalf("expected owner %s, got %s", host.ID, got.UserID)
	}
	if got.Image == nil || *got.Image != "https://cdn.test/image/cover.png" {
		t.Fatalf("unexpected image %v", got.Image)
	}
}

func TestCreatePodcastMultipartUploadsImage(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "Amina", models.RoleHost)

	req := multipartRequest(t, http.MethodPost, "/podcasts", map[string]string{
		"titre":     "Ondes",
		"categorie": "Culture",
	}, "image", "cover.png", []byte("fake png"))
	rec := env.call(t, http.MethodPost, "/podcasts", "", env.handler.CreatePodcast, &host, req)
	expectStatus(t, rec, http.StatusCreated)

	got := decode[podcastResponse](t, rec)
	if got.Image == nil || *got.Image != "https://cdn.test/image/cover.png" {
		t.Fatalf("expected uploaded image url, got %v", got.Image)
	}
	if len(env.uploader.files) != 1 || env.uploader.files[0].Kind != media.KindImage {
		t.Fatalf("expected one image upload, got %+v", env.uploader.files)
	}
}

func TestCreatePodcastErrors(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "Amina", models.RoleHost)
	listener := env.user(t, "Yassine", models.RoleListener)

	tests := []struct {
		name    string
		user    *models.User
		body    map[string]any
		raw     string
		status  int
		message string
		field   string
	}{
		{name: "anonymous", body: map[string]any{"titre": "A", "categorie": "B"}, status: http.StatusUnauthorized, message: msgUnauthenticated},
		{name: "listener", user: &listener, body: map[string]any{"titre": "A", "categorie": "B"}, status: http.StatusForbidden, message: msgForbidden},
		{name: "missing title", user: &host, body: map[string]any{"categorie": "B"}, status: http.StatusUnprocessableEntity, message: msgInvalidData, field: "titre"},
		{name: "bad image url", user: &host, body: map[string]any{"titre": "A", "categorie": "B", "image": "pas une url"}, status: http.StatusUnprocessableEntity, message: msgInvalidData, field: "image"},
		{name: "non string value", user: &host, body: map[string]any{"titre": 42, "categorie": "B"}, status: http.StatusUnprocessableEntity, message: msgInvalidData, field: "titre"},
		{name: "malformed body", user: &host, raw: `{"titre":`, status: http.StatusBadRequest},
		{name: "listener with malformed body", user: &listener, raw: `{"titre":`, status: http.StatusForbidden, message: msgForbidden},
		{name: "listener with non string value", user: &listener, body: map[string]any{"titre": 42}, status: http.StatusForbidden, message: msgForbidden},
		{name: "anonymous with malformed body", raw: `{"titre":`, status: http.StatusUnauthorized, message: msgUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/podcasts", tt.body)
			if tt.raw != "" {
				req = httptest.NewRequest(http.MethodPost, "/podcasts", strings.NewReader(tt.raw))
				req.Header.Set("Content-Type", "application/json")
			}
			rec := env.call(t, http.MethodPost, "/podcasts", "", env.handler.CreatePodcast, tt.user, req)
			expectStatus(t, rec, tt.status)
			got := decode[errorResponse](t, rec)
			if tt.message != "" && got.Error != tt.message {
				t.Fatalf("expected error %q, got %q", tt.message, got.Error)
			}
			if tt.field != "" && !got.Fields.Has(tt.field) {
				t.Fatalf("expected field error on %q, got %v", tt.field, got.Fields)
			}
		})
	}
}

func TestCreatePodcastUploadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.uploader.err = errors.New("bucket unreachable")
	host := env.user(t, "Amina", models.RoleHost)

	req := multipartRequest(t, http.MethodPost, "/podcasts", map[string]string{
		"titre":     "Ondes",
		"categorie": "Culture",
	}, "image", "cover.jpg", []byte("fake jpg"))
	rec := env.call(t, http.MethodPost, "/podcasts", "", env.handler.CreatePodcast, &host, req)
	expectStatus(t, rec, http.StatusBadGateway)

	podcasts, err := env.repo.ListPodcasts(context.Background(), storage.PodcastFilter{})
	if err != nil {
		t.Fatalf("ListPodcasts: %v", err)
	}
	if len(podcasts) != 0 {
		t.Fatalf("expected nothing persisted, got %d podcasts", len(podcasts))
	}
}

func TestPodcastReadsArePublic(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "Amina", models.RoleHost)
	podcast := env.podcast(t, host, "Intro au Go")
	env.podcast(t, host, "Cuisine du monde")

	rec := env.call(t, http.MethodGet, "/podcasts", "/podcasts", env.handler.ListPodcasts, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]podcastResponse](t, rec); len(list) != 2 {
		t.Fatalf("expected 2 podcasts, got %d", len(list))
	}

	rec = env.call(t, http.MethodGet, "/podcasts/{id}", "/podcasts/"+podcast.ID, env.handler.GetPodcast, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[podcastResponse](t, rec); got.ID != podcast.ID {
		t.Fatalf("expected podcast %s, got %s", podcast.ID, got.ID)
	}

	rec = env.call(t, http.MethodGet, "/podcasts/{id}", "/podcasts/missing", env.handler.GetPodcast, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
	if got := decode[errorResponse](t, rec); got.Error != msgNotFound {
		t.Fatalf("expected %q, got %q", msgNotFound, got.Error)
	}
}

func TestSearchPodcastsCombinesFilters(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "Amina", models.RoleHost)
	env.podcast(t, host, "Intro au Go")
	env.podcast(t, host, "intro à la cuisine")
	env.podcast(t, host, "Histoire")

	rec := env.call(t, http.MethodGet, "/search/podcasts", "/search/podcasts?titre=INTRO", env.handler.SearchPodcasts, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]podcastResponse](t, rec); len(list) != 2 {
		t.Fatalf("expected 2 matches for titre, got %d", len(list))
	}

	rec = env.call(t, http.MethodGet, "/search/podcasts", "/search/podcasts?titre=intro&categorie=culture", env.handler.SearchPodcasts, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]podcastResponse](t, rec); len(list) != 0 {
		t.Fatalf("expected filters to combine with AND, got %d matches", len(list))
	}
}

func TestUpdateAndDeletePodcastOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "Amina", models.RoleHost)
	other := env.user(t, "Karim", models.RoleHost)
	admin := env.user(t, "Salma", models.RoleAdministrator)
	podcast := env.podcast(t, owner, "Intro au Go")
	target := "/podcasts/" + podcast.ID

	req := jsonRequest(t, http.MethodPut, target, map[string]any{"titre": "Piraté"})
	rec := env.call(t, http.MethodPut, "/podcasts/{id}", target, env.handler.UpdatePodcast, &other, req)
	expectStatus(t, rec, http.StatusForbidden)

	req = jsonRequest(t, http.MethodPut, target, map[string]any{"titre": "Go avancé"})
	rec = env.call(t, http.MethodPut, "/podcasts/{id}", target, env.handler.UpdatePodcast, &owner, req)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[podcastResponse](t, rec); got.Titre != "Go avancé" || got.Categorie != "Tech" {
		t.Fatalf("unexpected update result %+v", got)
	}

	rec = env.call(t, http.MethodDelete, "/podcasts/{id}", target, env.handler.DeletePodcast, &other, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.call(t, http.MethodDelete, "/podcasts/{id}", target, env.handler.DeletePodcast, &admin, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[messageResponse](t, rec); got.Message != msgPodcastDeleted {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestEpisodeHandlers(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "Amina", models.RoleHost)
	podcast := env.podcast(t, host, "Intro au Go")
	base := "/podcasts/" + podcast.ID + "/episodes"

	listener := env.user(t, "Yassine", models.RoleListener)
	req := httptest.NewRequest(http.MethodPost, base, strings.NewReader(`{"titre":`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.call(t, http.MethodPost, "/podcasts/{id}/episodes", base, env.handler.CreateEpisode, &listener, req)
	expectStatus(t, rec, http.StatusForbidden)

	req = jsonRequest(t, http.MethodPost, "/podcasts/missing/episodes", map[string]any{"titre": "x"})
	rec = env.call(t, http.MethodPost, "/podcasts/{id}/episodes", "/podcasts/missing/episodes", env.handler.CreateEpisode, &host, req)
	expectStatus(t, rec, http.StatusNotFound)

	req = multipartRequest(t, http.MethodPost, base, map[string]string{"titre": "Épisode 1"}, "", "", nil)
	rec = env.call(t, http.MethodPost, "/podcasts/{id}/episodes", base, env.handler.CreateEpisode, &host, req)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorResponse](t, rec); !got.Fields.Has("audio") {
		t.Fatalf("expected audio field error, got %v", got.Fields)
	}

	req = multipartRequest(t, http.MethodPost, base, map[string]string{"titre": "Épisode 1"}, "audio", "ep1.mp3", []byte("ID3"))
	rec = env.call(t, http.MethodPost, "/podcasts/{id}/episodes", base, env.handler.CreateEpisode, &host, req)
	expectStatus(t, rec, http.StatusCreated)
	episode := decode[episodeResponse](t, rec)
	if episode.PodcastID != podcast.ID || episode.Audio != "https://cdn.test/audio/ep1.mp3" {
		t.Fatalf("unexpected episode %+v", episode)
	}

	rec = env.call(t, http.MethodGet, "/podcasts/{id}/episodes", base, env.handler.ListEpisodes, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]episodeResponse](t, rec); len(list) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(list))
	}

	rec = env.call(t, http.MethodGet, "/podcasts/{id}/episodes", "/podcasts/missing/episodes", env.handler.ListEpisodes, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = env.call(t, http.MethodGet, "/search/episodes", "/search/episodes?podcast=go", env.handler.SearchEpisodes, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]episodeResponse](t, rec); len(list) != 1 {
		t.Fatalf("expected search by podcast title to match, got %d", len(list))
	}

	target := "/episodes/" + episode.ID
	req = jsonRequest(t, http.MethodPut, target, map[string]any{"description": "court"})
	rec = env.call(t, http.MethodPut, "/episodes/{id}", target, env.handler.UpdateEpisode, &host, req)
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = env.call(t, http.MethodDelete, "/episodes/{id}", target, env.handler.DeleteEpisode, &host, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = env.call(t, http.MethodGet, "/episodes/{id}", target, env.handler.GetEpisode, nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestRegisterLoginMeLogout(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/register", map[string]any{
		"nom":                   "Benali",
		"prenom":                "Yassine",
		"email":                 "Yassine@Example.com",
		"password":              "motdepasse",
		"password_confirmation": "motdepasse",
	})
	rec := env.call(t, http.MethodPost, "/register", "", env.handler.Register, nil, req)
	expectStatus(t, rec, http.StatusOK)
	registered := decode[userMessageResponse](t, rec)
	if registered.Message != msgRegistered || registered.User.Role != "utilisateur" {
		t.Fatalf("unexpected register response %+v", registered)
	}
	if registered.User.Email != "yassine@example.com" {
		t.Fatalf("expected normalized email, got %q", registered.User.Email)
	}

	req = jsonRequest(t, http.MethodPost, "/login", map[string]any{"email": "yassine@example.com", "password": "motdepasse"})
	rec = env.call(t, http.MethodPost, "/login", "", env.handler.Login, nil, req)
	expectStatus(t, rec, http.StatusOK)
	cookie := findCookie(t, rec.Result().Cookies(), SessionCookieName)
	login := decode[loginResponse](t, rec)
	if login.Token == "" || login.Token != cookie.Value {
		t.Fatalf("expected token in body and cookie, got %q / %q", login.Token, cookie.Value)
	}

	me := httptest.NewRequest(http.MethodGet, "/me", nil)
	me.Header.Set("Authorization", "Bearer "+login.Token)
	user, token, ok, err := env.handler.AuthenticateRequest(me)
	if err != nil || !ok || token != login.Token {
		t.Fatalf("AuthenticateRequest: ok=%v err=%v", ok, err)
	}
	me = me.WithContext(ContextWithUser(me.Context(), user, token))
	rec = httptest.NewRecorder()
	env.handler.Me(rec, me)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[userResponse](t, rec); got.ID != registered.User.ID {
		t.Fatalf("expected me to return %s, got %s", registered.User.ID, got.ID)
	}

	logout := httptest.NewRequest(http.MethodPost, "/logout", nil)
	logout = logout.WithContext(ContextWithUser(logout.Context(), user, token))
	rec = httptest.NewRecorder()
	env.handler.Logout(rec, logout)
	expectStatus(t, rec, http.StatusOK)
	if cleared := findCookie(t, rec.Result().Cookies(), SessionCookieName); cleared.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got MaxAge %d", cleared.MaxAge)
	}
	if _, _, _, err := env.handler.AuthenticateRequest(me); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "Amina", models.RoleHost)

	req := jsonRequest(t, http.MethodPost, "/login", map[string]any{"email": "amina@example.com", "password": "mauvais"})
	rec := env.call(t, http.MethodPost, "/login", "", env.handler.Login, nil, req)
	expectStatus(t, rec, http.StatusUnauthorized)
	if got := decode[errorResponse](t, rec); got.Error != msgBadCredentials {
		t.Fatalf("expected %q, got %q", msgBadCredentials, got.Error)
	}
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "Amina", models.RoleHost)

	req := jsonRequest(t, http.MethodPost, "/reset-password", map[string]any{
		"old_password":              "incorrect",
		"new_password":              "nouveau-secret",
		"new_password_confirmation": "nouveau-secret",
	})
	rec := env.call(t, http.MethodPost, "/reset-password", "", env.handler.ResetPassword, &user, req)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[errorResponse](t, rec); got.Error != msgWrongPassword {
		t.Fatalf("expected %q, got %q", msgWrongPassword, got.Error)
	}

	req = jsonRequest(t, http.MethodPost, "/reset-password", map[string]any{
		"old_password":              "password123",
		"new_password":              "nouveau-secret",
		"new_password_confirmation": "autre-chose",
	})
	rec = env.call(t, http.MethodPost, "/reset-password", "", env.handler.ResetPassword, &user, req)
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	req = jsonRequest(t, http.MethodPost, "/reset-password", map[string]any{
		"old_password":              "password123",
		"new_password":              "nouveau-secret",
		"new_password_confirmation": "nouveau-secret",
	})
	rec = env.call(t, http.MethodPost, "/reset-password", "", env.handler.ResetPassword, &user, req)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[messageResponse](t, rec); got.Message != msgPasswordReset {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestUserHandlers(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "Salma", models.RoleAdministrator)
	host := env.user(t, "Amina", models.RoleHost)
	listener := env.user(t, "Yassine", models.RoleListener)

	rec := env.call(t, http.MethodGet, "/users", "/users", env.handler.ListUsers, &listener, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.call(t, http.MethodGet, "/users", "/users", env.handler.ListUsers, &admin, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]userResponse](t, rec); len(list) != 3 {
		t.Fatalf("expected 3 users, got %d", len(list))
	}

	req := jsonRequest(t, http.MethodPost, "/users", map[string]any{
		"nom": "Idrissi", "prenom": "Nadia", "email": "amina@example.com", "password": "motdepasse", "role": "animateur",
	})
	rec = env.call(t, http.MethodPost, "/users", "", env.handler.CreateUser, &admin, req)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if got := decode[errorResponse](t, rec); !got.Fields.Has("email") {
		t.Fatalf("expected duplicate email error, got %v", got.Fields)
	}

	req = jsonRequest(t, http.MethodPost, "/users", map[string]any{
		"nom": "Idrissi", "prenom": "Nadia", "email": "nadia@example.com", "password": "motdepasse", "role": "animateur",
	})
	rec = env.call(t, http.MethodPost, "/users", "", env.handler.CreateUser, &admin, req)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[userMessageResponse](t, rec)
	if created.Message != msgUserCreated || created.User.Role != "animateur" {
		t.Fatalf("unexpected create response %+v", created)
	}

	target := "/users/" + listener.ID
	req = jsonRequest(t, http.MethodPut, target, map[string]any{"role": "administrateur"})
	rec = env.call(t, http.MethodPut, "/users/{id}", target, env.handler.UpdateUser, &listener, req)
	expectStatus(t, rec, http.StatusForbidden)

	req = jsonRequest(t, http.MethodPut, target, map[string]any{"nom": "Benali"})
	rec = env.call(t, http.MethodPut, "/users/{id}", target, env.handler.UpdateUser, &listener, req)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[userMessageResponse](t, rec); got.User.Nom != "Benali" || got.Message != msgUserUpdated {
		t.Fatalf("unexpected update response %+v", got)
	}

	rec = env.call(t, http.MethodGet, "/users/{id}", "/users/"+host.ID, env.handler.GetUser, &listener, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.call(t, http.MethodDelete, "/users/{id}", "/users/"+admin.ID, env.handler.DeleteUser, &admin, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[errorResponse](t, rec); got.Error != msgSelfDelete {
		t.Fatalf("expected %q, got %q", msgSelfDelete, got.Error)
	}

	rec = env.call(t, http.MethodDelete, "/users/{id}", "/users/"+host.ID, env.handler.DeleteUser, &admin, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[messageResponse](t, rec); got.Message != msgUserDeleted {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestHosts(t *testing.T) {
	env := newTestEnv(t)
	listener := env.user(t, "Yassine", models.RoleListener)
	host := env.user(t, "Amina", models.RoleHost)

	rec := env.call(t, http.MethodGet, "/hosts", "/hosts", env.handler.Hosts, nil, nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.call(t, http.MethodGet, "/hosts", "/hosts", env.handler.Hosts, &listener, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]userResponse](t, rec); len(list) != 1 || list[0].ID != host.ID {
		t.Fatalf("expected only the host, got %+v", list)
	}

	rec = env.call(t, http.MethodGet, "/hosts/{id}", "/hosts/"+listener.ID, env.handler.Host, &listener, nil)
	expectStatus(t, rec, http.StatusNotFound)
	if got := decode[errorResponse](t, rec); got.Error != msgNotHost {
		t.Fatalf("expected %q, got %q", msgNotHost, got.Error)
	}
}

func TestHealthReportsDegradedComponents(t *testing.T) {
	env := newTestEnv(t)
	env.handler.RateLimiter = failingPinger{err: errors.New("redis down")}
	env.handler.MediaState = func() string { return "open" }

	rec := httptest.NewRecorder()
	env.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expectStatus(t, rec, http.StatusServiceUnavailable)

	got := decode[healthResponse](t, rec)
	if got.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", got.Status)
	}
	states := map[string]string{}
	for _, component := range got.Services {
		states[component.Component] = component.Status
	}
	want := map[string]string{"datastore": "ok", "sessions": "ok", "rate_limiter": "degraded", "media": "open"}
	for component, status := range want {
		if states[component] != status {
			t.Fatalf("expected %s=%s, got %v", component, status, states)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrNotHost, http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrSelfDelete, http.StatusBadRequest},
		{service.ErrWrongPassword, http.StatusBadRequest},
		{service.ErrUploadFailed, http.StatusBadGateway},
		{service.ErrConflict, http.StatusConflict},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if status, _ := statusFor(tt.err); status != tt.status {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, status, tt.status)
		}
	}
}
