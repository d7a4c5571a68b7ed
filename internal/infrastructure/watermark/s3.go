package watermark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/erp/mikrosync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// maxObjectSize bounds how much of the watermark object is read
const maxObjectSize = 64 << 10

// s3Client is the subset of *s3.Client the store needs
type s3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the watermark in a single object of an S3-compatible bucket.
// PutObject replaces the whole object, so readers see either the old or the new value.
type S3Store struct {
	client s3Client
	bucket string
	key    string
	label  string
	logger *zap.Logger
}

// NewS3Client builds an S3 client for any S3-compatible endpoint (AWS S3, MinIO, RustFS)
func NewS3Client(ctx context.Context, cfg *config.StorageConfig) (*s3.Client, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewS3Store creates a store on an existing client
func NewS3Store(client s3Client, bucket, key, label string, logger *zap.Logger) *S3Store {
	if label == "" {
		label = DefaultLabel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{client: client, bucket: bucket, key: key, label: label, logger: logger}
}

// Read returns the stored code, or "" when the object does not exist
func (s *S3Store) Read(ctx context.Context) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: s3 get %s/%s: %v", relay.ErrStorageUnavailable, s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize))
	if err != nil {
		return "", fmt.Errorf("%w: s3 read %s/%s: %v", relay.ErrStorageUnavailable, s.bucket, s.key, err)
	}
	return decode(string(data)), nil
}

// Write uploads the encoded line as the whole object
func (s *S3Store) Write(ctx context.Context, code string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        strings.NewReader(encode(s.label, code)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 put %s/%s: %v", relay.ErrStorageUnavailable, s.bucket, s.key, err)
	}
	s.logger.Debug("Watermark written",
		zap.String("bucket", s.bucket),
		zap.String("key", s.key),
		zap.String("order_code", code),
	)
	return nil
}

// Close is a no-op
func (s *S3Store) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	// some S3-compatible services only report the code in the message
	return strings.Contains(err.Error(), "NoSuchKey")
}
