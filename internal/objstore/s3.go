package objstore

import (
	"bytes"
	"context"
	"fmt"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const keyPrefix = "documents"

// S3Mirror copies raw uploads into an S3 bucket so the original bytes outlive
// the vector store. It is write-only from the service's point of view.
type S3Mirror struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

// NewS3Mirror builds a mirror against the given bucket using the default AWS
// credential chain.
func NewS3Mirror(ctx context.Context, bucket, region string, logger *zap.Logger) (*S3Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("objstore: empty bucket")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}
	return &S3Mirror{client: s3.NewFromConfig(cfg), bucket: bucket, log: logger}, nil
}

// Put stores the raw upload at documents/<filename>.
func (m *S3Mirror) Put(ctx context.Context, filename string, data []byte) error {
	key := path.Join(keyPrefix, filename)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("objstore: put %s: %w", key, err)
	}
	m.log.Debug("upload mirrored", zap.String("bucket", m.bucket), zap.String("key", key))
	return nil
}
