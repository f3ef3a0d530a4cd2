// Package storage performs housekeeping on output locations that the query engine does
// not: clearing a table's destination before a full rewrite and bootstrapping local
// MinIO buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/malbeclabs/playlake/pkg/duck"
)

// deleteBatchSize is the DeleteObjects limit.
const deleteBatchSize = 1000

type Store interface {
	// Clear removes everything under uri. A missing location is not an error.
	Clear(ctx context.Context, uri string) error

	// Reset clears uri and leaves it ready to be written: local paths are recreated as
	// empty directories, S3 prefixes need nothing further.
	Reset(ctx context.Context, uri string) error
}

type Config struct {
	Logger *slog.Logger

	// S3 is required to clear s3:// locations; nil restricts the store to local paths.
	S3 *duck.S3Config
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.S3 != nil {
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("invalid S3 config: %w", err)
		}
	}
	return nil
}

// ObjectStore clears local directories and S3 prefixes.
type ObjectStore struct {
	log    *slog.Logger
	s3cfg  *duck.S3Config
	client *s3.Client
}

func New(ctx context.Context, cfg Config) (*ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &ObjectStore{log: cfg.Logger, s3cfg: cfg.S3}
	if cfg.S3 != nil {
		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		s.client = client
	}
	return s, nil
}

func newS3Client(ctx context.Context, cfg *duck.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.Endpoint == "" {
		return s3.NewFromConfig(awsCfg), nil
	}
	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		if cfg.UseSSL {
			endpointURL = "https://" + endpointURL
		} else {
			endpointURL = "http://" + endpointURL
		}
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpointURL
		o.UsePathStyle = cfg.URLStyle == "" || cfg.URLStyle == "path"
	}), nil
}

func (s *ObjectStore) Clear(ctx context.Context, uri string) error {
	if err := duck.ValidateStorageURI(uri); err != nil {
		return err
	}
	if duck.IsS3(uri) {
		return s.clearS3(ctx, uri)
	}
	return s.clearLocal(uri)
}

func (s *ObjectStore) Reset(ctx context.Context, uri string) error {
	if err := s.Clear(ctx, uri); err != nil {
		return err
	}
	if duck.IsS3(uri) {
		return nil
	}
	path, err := duck.LocalPath(uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

func (s *ObjectStore) clearLocal(uri string) error {
	path, err := duck.LocalPath(uri)
	if err != nil {
		return err
	}
	if path == filepath.Dir(path) {
		return fmt.Errorf("refusing to clear filesystem root %s", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to clear %s: %w", path, err)
	}
	s.log.Debug("storage: cleared local path", "path", path)
	return nil
}

func (s *ObjectStore) clearS3(ctx context.Context, uri string) error {
	if s.client == nil {
		return fmt.Errorf("cannot clear %s: store has no S3 config", duck.RedactedStorageURI(uri))
	}
	bucket, prefix, err := duck.SplitS3(uri)
	if err != nil {
		return err
	}
	if prefix == "" {
		return fmt.Errorf("refusing to clear bucket root %s", bucket)
	}

	var deleted int
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
		}
		for start := 0; start < len(page.Contents); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(page.Contents))
			ids := make([]types.ObjectIdentifier, 0, end-start)
			for _, obj := range page.Contents[start:end] {
				ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
			}
			out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("failed to delete objects under s3://%s/%s: %w", bucket, prefix, err)
			}
			if len(out.Errors) > 0 {
				first := out.Errors[0]
				return fmt.Errorf("failed to delete %d objects under s3://%s/%s, first %s: %s",
					len(out.Errors), bucket, prefix, aws.ToString(first.Key), aws.ToString(first.Message))
			}
			deleted += len(ids)
		}
	}
	s.log.Debug("storage: cleared s3 prefix", "bucket", bucket, "prefix", prefix, "objects", deleted)
	return nil
}

// EnsureBucket creates the bucket of an s3:// uri when the store points at a local
// MinIO endpoint and the bucket is missing. Other endpoints are left alone.
func (s *ObjectStore) EnsureBucket(ctx context.Context, uri string) error {
	if s.client == nil || !duck.IsS3(uri) || !isLocalEndpoint(s.s3cfg.Endpoint) {
		return nil
	}
	bucket, _, err := duck.SplitS3(uri)
	if err != nil {
		return err
	}

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	s.log.Info("storage: creating MinIO bucket", "bucket", bucket, "endpoint", s.s3cfg.Endpoint)
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

func isLocalEndpoint(endpoint string) bool {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.HasPrefix(endpoint, "localhost") ||
		strings.HasPrefix(endpoint, "127.0.0.1") ||
		strings.Contains(endpoint, "host.docker.internal")
}
