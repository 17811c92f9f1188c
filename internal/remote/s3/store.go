// Package s3 implements remote.ObjectStore on S3-compatible storage
// (AWS S3, MinIO, Supabase's S3 gateway).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/farmsync/farmsync/internal/remote"
)

// Config holds construction parameters.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; custom endpoint such as MinIO
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	PathStyle       bool
	// PublicBaseURL overrides the URL prefix objects are served from.
	PublicBaseURL string
}

// Store is an S3-backed remote.ObjectStore for a single bucket.
type Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// New creates a Store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(client, cfg, region), nil
}

func newStore(client *s3.Client, cfg Config, region string) *Store {
	base := cfg.PublicBaseURL
	switch {
	case base != "":
	case cfg.Endpoint != "":
		base = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	}
	return &Store{client: client, bucket: cfg.Bucket, baseURL: strings.TrimSuffix(base, "/") + "/"}
}

// Upload buffers r (photos are capped well below memory concerns) so the
// SDK can sign and retry a seekable body.
func (s *Store) Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", &remote.Error{Operation: "upload", Err: err}
	}
	key := strings.TrimPrefix(path, "/")
	input := &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", &remote.Error{Operation: "upload", Err: err}
	}
	return s.PublicURL(key), nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	key := strings.TrimPrefix(path, "/")
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return &remote.Error{Operation: "delete_object", Err: err}
	}
	return nil
}

func (s *Store) PublicURL(path string) string {
	return s.baseURL + strings.TrimPrefix(path, "/")
}
