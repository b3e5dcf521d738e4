package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultS3RequestTimeout = 30 * time.Second

// S3Config describes an S3-compatible bucket (AWS, MinIO, R2...).
type S3Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Prefix         string
	PublicEndpoint string
	UsePathStyle   bool
	RequestTimeout time.Duration
}

// s3PutObjectAPI is the subset of the S3 client the uploader needs.
type s3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores media in an S3-compatible bucket.
type S3Uploader struct {
	client s3PutObjectAPI
	cfg    S3Config
}

// NewS3Uploader builds a client from cfg. Static keys are used when both are
// set, otherwise the default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3UploaderWithClient(client, cfg), nil
}

func newS3UploaderWithClient(client s3PutObjectAPI, cfg S3Config) *S3Uploader {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultS3RequestTimeout
	}
	return &S3Uploader{client: client, cfg: cfg}
}

func (u *S3Uploader) Upload(ctx context.Context, file File) (string, error) {
	if file.Reader == nil {
		return "", ErrEmpty
	}
	key := u.applyPrefix(objectKey(file))

	ctx, cancel := context.WithTimeout(ctx, u.cfg.RequestTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        file.Reader,
		ContentType: aws.String(contentType(file)),
	}
	if file.Size > 0 {
		input.ContentLength = aws.Int64(file.Size)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload object %s: %w", key, err)
	}
	return u.publicURL(key), nil
}

func (u *S3Uploader) applyPrefix(key string) string {
	prefix := strings.Trim(strings.TrimSpace(u.cfg.Prefix), "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + strings.TrimLeft(key, "/")
}

// publicURL prefers PublicEndpoint (a CDN or public bucket host) and falls
// back to a path-style URL on the API endpoint.
func (u *S3Uploader) publicURL(key string) string {
	if base := strings.TrimSpace(u.cfg.PublicEndpoint); base != "" {
		return joinURL(base, key)
	}
	if endpoint := strings.TrimSpace(u.cfg.Endpoint); endpoint != "" {
		return joinURL(joinURL(endpoint, u.cfg.Bucket), key)
	}
	region := strings.TrimSpace(u.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, region, strings.TrimLeft(key, "/"))
}
