package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vango-dev/domwire/internal/config"
	"github.com/vango-dev/domwire/internal/errors"
	"github.com/vango-dev/domwire/pkg/upload"
)

// openStore opens the download store configured in cfg. It returns nil
// when downloads are not configured.
func openStore(cfg *config.Config) (upload.Store, error) {
	switch {
	case cfg.UploadsPath() != "":
		store, err := upload.NewDiskStore(cfg.UploadsPath(), cfg.Uploads.MaxSize)
		if err != nil {
			return nil, errors.New("E140").Wrap(err)
		}
		return store, nil

	case cfg.Uploads.S3 != nil:
		s3cfg := cfg.Uploads.S3
		return upload.NewS3Store(newS3Client(s3cfg), s3cfg.Bucket, s3cfg.Prefix, cfg.Uploads.MaxSize), nil
	}
	return nil, nil
}

// newS3Client builds a client from the bucket settings and the standard
// AWS_* environment variables.
func newS3Client(c *config.S3Config) *s3.Client {
	region := c.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := s3.Options{
		Region:      region,
		Credentials: envCredentials(),
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// envCredentials reads static credentials from the environment. Without
// AWS_ACCESS_KEY_ID requests go out unsigned.
func envCredentials() aws.CredentialsProvider {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	if id == "" {
		return aws.AnonymousCredentials{}
	}
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "EnvironmentVariables",
		}, nil
	}))
}

// cleanupLoop removes unclaimed files older than maxAge until ctx is done.
func cleanupLoop(ctx context.Context, store upload.Store, maxAge time.Duration, logger *slog.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, maxAge); err != nil {
				logger.Warn("download cleanup failed", "error", err)
			}
		}
	}
}
