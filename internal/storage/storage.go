// Package storage writes declaration artifacts and run reports to the local
// output directory or to an S3 bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ginjaninja78/asycuda-export/internal/config"
)

// Storage defines how artifacts are persisted.
type Storage interface {
	// Save writes body under key.
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get streams the object back with its content type.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// Location describes where key lives, for logs and reports.
	Location(key string) string
}

// New creates the storage backend selected by cfg. Local storage defaults to
// outputDir.
func New(ctx context.Context, cfg config.StorageConfig, outputDir string) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		dir := cfg.LocalBaseDir
		if dir == "" {
			dir = outputDir
		}
		slog.Info("initializing local storage", "dir", dir)
		return NewLocal(dir)

	case "s3":
		slog.Info("initializing S3 storage", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)

		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3Region),
		}
		if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
			creds := credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
			opts = append(opts, awsconfig.WithCredentialsProvider(creds))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		return NewS3(client, cfg.S3Bucket, cfg.S3Prefix), nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
