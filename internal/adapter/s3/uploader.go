// Package s3 publishes the exported data layers to an S3 bucket for CDN
// delivery. The publish is feature-flagged: it is only wired when S3_BUCKET
// is configured.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/signalatlas/vibe-etl/internal/adapter/export"
	"github.com/signalatlas/vibe-etl/internal/domain"
)

// objectStore is the slice of the S3 API the uploader needs; tests stub it.
type objectStore interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Uploader publishes gzipped layers to a bucket/prefix.
// It implements pipeline.Exporter.
type Uploader struct {
	client     objectStore
	bucket     string
	prefix     string
	resolution int
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewUploader creates an Uploader using the default AWS credential chain.
func NewUploader(ctx context.Context, bucket, prefix string, resolution int, logger *slog.Logger) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Uploader{
		client:     awss3.NewFromConfig(awsCfg),
		bucket:     bucket,
		prefix:     prefix,
		resolution: resolution,
		logger:     logger,
		clock:      clockwork.NewRealClock(),
	}, nil
}

func (u *Uploader) Name() string { return "s3" }

// Export uploads every layer as <prefix>/<name>.gz with gzip content
// encoding so CDNs can serve the objects directly.
func (u *Uploader) Export(ctx context.Context, result domain.AggregateResult) error {
	layers, err := export.BuildLayers(result, u.resolution, u.clock.Now())
	if err != nil {
		return err
	}

	for _, layer := range layers {
		compressed, err := export.Compress(layer.Data)
		if err != nil {
			return fmt.Errorf("compress %s: %w", layer.Name, err)
		}

		key := path.Join(u.prefix, layer.Name+".gz")
		_, err = u.client.PutObject(ctx, &awss3.PutObjectInput{
			Bucket:          aws.String(u.bucket),
			Key:             aws.String(key),
			Body:            bytes.NewReader(compressed),
			ContentType:     aws.String("application/json"),
			ContentEncoding: aws.String("gzip"),
		})
		if err != nil {
			return fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
		}

		u.logger.Info("layer uploaded", "bucket", u.bucket, "key", key, "bytes", len(compressed))
	}
	return nil
}
