package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		file File
		want error
	}{
		{"png", File{Kind: KindImage, Filename: "cover.png", Size: 10}, nil},
		{"upper-case jpeg", File{Kind: KindImage, Filename: "COVER.JPEG", Size: 10}, nil},
		{"gif rejected", File{Kind: KindImage, Filename: "cover.gif", Size: 10}, ErrUnsupportedType},
		{"image at limit", File{Kind: KindImage, Filename: "cover.jpg", Size: MaxImageSize}, nil},
		{"image over limit", File{Kind: KindImage, Filename: "cover.jpg", Size: MaxImageSize + 1}, ErrTooLarge},
		{"mp3", File{Kind: KindAudio, Filename: "ep.mp3", Size: 10}, nil},
		{"wav", File{Kind: KindAudio, Filename: "ep.wav", Size: 10}, nil},
		{"large audio allowed", File{Kind: KindAudio, Filename: "ep.mp3", Size: 50 << 20}, nil},
		{"ogg rejected", File{Kind: KindAudio, Filename: "ep.ogg", Size: 10}, ErrUnsupportedType},
		{"image as audio", File{Kind: KindAudio, Filename: "cover.png", Size: 10}, ErrUnsupportedType},
		{"no extension", File{Kind: KindAudio, Filename: "episode", Size: 10}, ErrUnsupportedType},
		{"empty", File{Kind: KindAudio, Filename: "ep.mp3"}, ErrEmpty},
		{"unknown kind", File{Kind: "video", Filename: "a.mp4", Size: 10}, ErrUnsupportedType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.file)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLocalUploaderWritesFile(t *testing.T) {
	dir := t.TempDir()
	uploader, err := NewLocalUploader(dir, "http://localhost:8080/media/")
	if err != nil {
		t.Fatalf("NewLocalUploader: %v", err)
	}
	url, err := uploader.Upload(context.Background(), File{
		Kind:     KindAudio,
		Filename: "Episode.MP3",
		Size:     5,
		Reader:   strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/media/audios/") || !strings.HasSuffix(url, ".mp3") {
		t.Fatalf("unexpected url %q", url)
	}

	key := strings.TrimPrefix(url, "http://localhost:8080/media/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalUploaderCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	uploader, err := NewLocalUploader(dir, "/media")
	if err != nil {
		t.Fatalf("NewLocalUploader: %v", err)
	}
	if _, err := uploader.Upload(context.Background(), File{Kind: KindImage, Filename: "a.png", Size: 3, Reader: failingReader{}}); err == nil {
		t.Fatal("expected upload error")
	}
	entries, err := os.ReadDir(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, got %d", len(entries))
	}
}

type fakeS3 struct {
	mu     sync.Mutex
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(params.Body)
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploaderPutsObject(t *testing.T) {
	client := &fakeS3{}
	uploader := newS3UploaderWithClient(client, S3Config{
		Bucket:         "podcasts",
		Prefix:         "/media/",
		PublicEndpoint: "https://cdn.example.com",
	})

	url, err := uploader.Upload(context.Background(), File{
		Kind:     KindImage,
		Filename: "cover.jpg",
		Size:     4,
		Reader:   bytes.NewReader([]byte("jpeg")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected one PutObject call, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if *input.Bucket != "podcasts" {
		t.Fatalf("unexpected bucket %q", *input.Bucket)
	}
	if !strings.HasPrefix(*input.Key, "media/images/") || !strings.HasSuffix(*input.Key, ".jpg") {
		t.Fatalf("unexpected key %q", *input.Key)
	}
	if *input.ContentType != "image/jpeg" {
		t.Fatalf("expected content type from extension, got %q", *input.ContentType)
	}
	if *input.ContentLength != 4 {
		t.Fatalf("expected content length 4, got %d", *input.ContentLength)
	}
	if string(client.bodies[0]) != "jpeg" {
		t.Fatalf("unexpected body %q", client.bodies[0])
	}
	if url != "https://cdn.example.com/"+*input.Key {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestS3UploaderPublicURLFallbacks(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"endpoint", S3Config{Bucket: "b", Endpoint: "http://minio:9000/"}, "http://minio:9000/b/k.mp3"},
		{"aws", S3Config{Bucket: "b", Region: "eu-west-3"}, "https://b.s3.eu-west-3.amazonaws.com/k.mp3"},
		{"aws default region", S3Config{Bucket: "b"}, "https://b.s3.us-east-1.amazonaws.com/k.mp3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uploader := newS3UploaderWithClient(&fakeS3{}, tc.cfg)
			if got := uploader.publicURL("k.mp3"); got != tc.want {
				t.Fatalf("publicURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestS3UploaderWrapsErrors(t *testing.T) {
	backendErr := errors.New("access denied")
	uploader := newS3UploaderWithClient(&fakeS3{err: backendErr}, S3Config{Bucket: "b"})
	_, err := uploader.Upload(context.Background(), File{Kind: KindAudio, Filename: "a.wav", Size: 1, Reader: strings.NewReader("x")})
	if !errors.Is(err, backendErr) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

type scriptedUploader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *scriptedUploader) Upload(context.Context, File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.example.com/file", nil
}

func TestBreakerUploaderOpensAfterFailures(t *testing.T) {
	backend := &scriptedUploader{err: errors.New("timeout")}
	var transitions []string
	breaker := NewBreakerUploader(backend, BreakerConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
		OnStateChange: func(_, from, to string) {
			transitions = append(transitions, from+"->"+to)
		},
	})

	file := File{Kind: KindAudio, Filename: "a.mp3", Size: 1}
	for i := 0; i < 2; i++ {
		if _, err := breaker.Upload(context.Background(), file); err == nil || errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}
	if breaker.State() != "open" {
		t.Fatalf("expected open breaker, got %s", breaker.State())
	}

	_, err := breaker.Upload(context.Background(), file)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable while open, got %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected backend to be skipped while open, got %d calls", backend.calls)
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
}

func TestBreakerUploaderPassesThroughSuccess(t *testing.T) {
	breaker := NewBreakerUploader(&scriptedUploader{}, BreakerConfig{})
	url, err := breaker.Upload(context.Background(), File{Kind: KindImage, Filename: "a.png", Size: 1})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example.com/file" {
		t.Fatalf("unexpected url %q", url)
	}
	if breaker.State() != "closed" {
		t.Fatalf("expected closed breaker, got %s", breaker.State())
	}
}
