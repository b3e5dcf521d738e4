// Package service orchestrates every podcast, episode, user and credential
// operation.
//
// Each mutating call runs the same ordered pipeline: resolve the target,
// evaluate the policy, validate the payload, upload any attachment and only
// then persist. A failure at any step returns before the next one starts, so
// a rejected or failed request never leaves partial state behind.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podcast-api/internal/media"
	"podcast-api/internal/models"
	"podcast-api/internal/policy"
	"podcast-api/internal/storage"
	"podcast-api/internal/validation"
)

// Observer receives policy decisions and upload outcomes, typically to feed
// metrics.
type Observer interface {
	ObserveDecision(action policy.Action, decision policy.Decision)
	ObserveUpload(kind media.Kind, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(policy.Action, policy.Decision) {}
func (nopObserver) ObserveUpload(media.Kind, time.Duration, error)  {}

// Sessions is the bearer token lifecycle the services depend on.
// *auth.SessionManager implements it.
type Sessions interface {
	Create(ctx context.Context, userID string) (string, time.Time, error)
	Validate(ctx context.Context, token string) (string, time.Time, bool, error)
	Revoke(ctx context.Context, token string) error
	RevokeUser(ctx context.Context, userID, keepToken string) error
}

// Attachment is an optional media payload. A multipart upload sets File; a
// JSON request referencing media already hosted elsewhere sets URL.
type Attachment struct {
	URL  string
	File *media.File
}

func (a *Attachment) present() bool {
	return a != nil && (a.File != nil || strings.TrimSpace(a.URL) != "")
}

// Options configures the services built by New.
type Options struct {
	Logger   *slog.Logger
	Uploader media.Uploader
	Observer Observer
}

// Services groups the resource services sharing one repository.
type Services struct {
	Podcasts *PodcastService
	Episodes *EpisodeService
	Users    *UserService
	Auth     *AuthService
}

// New wires every service against repo. sessions and hasher back the
// credential pipeline.
func New(repo storage.Repository, sessions Sessions, hasher PasswordHasher, opts Options) *Services {
	b := newBase(repo, opts)
	return &Services{
		Podcasts: &PodcastService{base: b},
		Episodes: &EpisodeService{base: b},
		Users:    &UserService{base: b, sessions: sessions, hasher: hasher},
		Auth:     &AuthService{base: b, sessions: sessions, hasher: hasher},
	}
}

// PasswordHasher hashes and verifies passwords. auth.BcryptHasher implements
// it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

type base struct {
	repo     storage.Repository
	uploader media.Uploader
	observer Observer
	logger   *slog.Logger
}

func newBase(repo storage.Repository, opts Options) *base {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &base{
		repo:     repo,
		uploader: opts.Uploader,
		observer: observer,
		logger:   logger,
	}
}

// authorize evaluates the policy once and translates a denial into the
// matching service error.
func (b *base) authorize(ctx context.Context, actor *models.User, action policy.Action, target policy.Target) error {
	decision := policy.Evaluate(actor, action, target)
	b.observer.ObserveDecision(action, decision)
	if decision.Allowed {
		return nil
	}

	attrs := []any{"action", action.String(), "reason", string(decision.Reason)}
	if actor != nil {
		attrs = append(attrs, "user_id", actor.ID, "role", actor.Role.String())
	}
	b.logger.DebugContext(ctx, "policy denied", attrs...)

	switch decision.Reason {
	case policy.DenyAnonymous:
		return fmt.Errorf("%s: %w", action, ErrUnauthenticated)
	case policy.DenySelfDelete:
		return ErrSelfDelete
	default:
		return fmt.Errorf("%s (%s): %w", action, decision.Reason, ErrForbidden)
	}
}

// precheck runs authorize only when the decision is a denial, so an allowed
// caller is recorded once, by the operation that follows.
func (b *base) precheck(ctx context.Context, actor *models.User, action policy.Action, target policy.Target) error {
	if policy.Evaluate(actor, action, target).Allowed {
		return nil
	}
	return b.authorize(ctx, actor, action, target)
}

// checkAttachment validates an uploaded file of kind and records any failure
// under field. URL attachments are checked by the payload rules.
func checkAttachment(fields validation.Fields, field string, kind media.Kind, attachment *Attachment) {
	if attachment == nil || attachment.File == nil {
		return
	}
	file := *attachment.File
	file.Kind = kind
	err := media.Check(file)
	switch {
	case err == nil:
	case errors.Is(err, media.ErrUnsupportedType):
		if kind == media.KindAudio {
			fields.Add(field, msgAudioFormat)
		} else {
			fields.Add(field, msgImageFormat)
		}
	case errors.Is(err, media.ErrTooLarge):
		fields.Add(field, msgImageTooLarge)
	case errors.Is(err, media.ErrEmpty):
		if kind == media.KindAudio {
			fields.Add(field, msgAudioRequired)
		} else {
			fields.Add(field, msgImageEmpty)
		}
	default:
		fields.Add(field, err.Error())
	}
}

// attachmentURL returns the URL to persist for attachment, uploading the
// file first when one was sent.
func (b *base) attachmentURL(ctx context.Context, kind media.Kind, attachment *Attachment) (string, error) {
	if attachment.File == nil {
		return strings.TrimSpace(attachment.URL), nil
	}
	if b.uploader == nil {
		return "", fmt.Errorf("%s upload: no uploader configured: %w", kind, ErrUploadFailed)
	}

	file := *attachment.File
	file.Kind = kind
	start := time.Now()
	url, err := b.uploader.Upload(ctx, file)
	b.observer.ObserveUpload(kind, time.Since(start), err)
	if err != nil {
		b.logger.WarnContext(ctx, "media upload failed", "kind", string(kind), "filename", file.Filename, "error", err)
		return "", fmt.Errorf("%s upload: %v: %w", kind, err, ErrUploadFailed)
	}
	return url, nil
}

// storeErr translates repository errors into service errors.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
