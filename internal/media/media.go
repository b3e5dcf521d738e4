// Package media validates and stores uploaded podcast covers and episode audio.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies the class of media being uploaded.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// MaxImageSize is the largest accepted cover image.
const MaxImageSize int64 = 2 << 20

var (
	// ErrUnsupportedType is returned for files whose extension is not accepted
	// for the requested Kind.
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrTooLarge is returned when a file exceeds the size limit of its Kind.
	ErrTooLarge = errors.New("media too large")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("media is empty")
)

var allowedExtensions = map[Kind]map[string]string{
	KindImage: {".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg"},
	KindAudio: {".mp3": "audio/mpeg", ".wav": "audio/wav"},
}

// File is an uploaded attachment read from a multipart request.
type File struct {
	Kind        Kind
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Uploader stores a file and returns the public URL it is reachable at.
type Uploader interface {
	Upload(ctx context.Context, file File) (string, error)
}

// Check enforces the extension and size rules of the file's Kind.
func Check(file File) error {
	exts, ok := allowedExtensions[file.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrUnsupportedType, file.Kind)
	}
	ext := strings.ToLower(path.Ext(file.Filename))
	if _, ok := exts[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if file.Size == 0 {
		return ErrEmpty
	}
	if file.Kind == KindImage && file.Size > MaxImageSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, file.Size)
	}
	return nil
}

// contentType returns the declared type, falling back to the one implied by
// the extension.
func contentType(file File) string {
	if ct := strings.TrimSpace(file.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	ext := strings.ToLower(path.Ext(file.Filename))
	if ct, ok := allowedExtensions[file.Kind][ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// objectKey builds a collision-free key such as "images/<uuid>.png".
func objectKey(file File) string {
	ext := strings.ToLower(path.Ext(file.Filename))
	return string(file.Kind) + "s/" + uuid.NewString() + ext
}

func joinURL(base, key string) string {
	trimmedBase := strings.TrimRight(strings.TrimSpace(base), "/")
	trimmedKey := strings.TrimLeft(key, "/")
	if trimmedBase == "" {
		return "/" + trimmedKey
	}
	return trimmedBase + "/" + trimmedKey
}
