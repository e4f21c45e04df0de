// Package publish uploads the exported GeoJSON to S3.
package publish

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"newspipe/pkg/config"
)

const (
	contentType  = "application/geo+json"
	cacheControl = "public, max-age=300"
)

// ErrNoBucket is returned when publishing is not configured.
var ErrNoBucket = errors.New("publish: no bucket configured")

// PutObjectAPI is the part of the S3 client the publisher uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads one file to a fixed bucket and key.
type Publisher struct {
	client PutObjectAPI
	bucket string
	key    string
}

// New wraps an existing client.
func New(client PutObjectAPI, bucket, key string) (*Publisher, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	return &Publisher{client: client, bucket: bucket, key: key}, nil
}

// FromConfig builds an S3 client from the default AWS credential chain.
func FromConfig(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return New(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Key)
}

// Publish uploads the file at path. With dryRun it only logs.
func (p *Publisher) Publish(ctx context.Context, path string, dryRun bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	sum := md5.Sum(data)

	if dryRun {
		slog.Info("Dry run: would publish", "bucket", p.bucket, "key", p.key, "bytes", len(data))
		return nil
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(p.key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
		ContentMD5:   aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", p.bucket, p.key, err)
	}
	slog.Info("Published export", "bucket", p.bucket, "key", p.key, "bytes", len(data))
	return nil
}
