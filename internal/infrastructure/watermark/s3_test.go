package watermark

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/erp/mikrosync/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory keyed by bucket/key
type fakeS3 struct {
	objects map[string]string
	putErr  error
	getErr  error
	lastPut *s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.lastPut = in
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object reads as empty", func(t *testing.T) {
		s := NewS3Store(newFakeS3(), "relay", "mikrosync/latest_order_code", "", nil)

		code, err := s.Read(ctx)

		require.NoError(t, err)
		assert.Empty(t, code)
	})

	t.Run("write then read", func(t *testing.T) {
		client := newFakeS3()
		s := NewS3Store(client, "relay", "wm", "", nil)

		require.NoError(t, s.Write(ctx, "SIP-9"))

		assert.Equal(t, "En son oluşturulan sipariş kodu:SIP-9", client.objects["relay/wm"])
		assert.Equal(t, "text/plain; charset=utf-8", aws.ToString(client.lastPut.ContentType))
		code, err := s.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "SIP-9", code)
	})

	t.Run("not found reported in message only", func(t *testing.T) {
		client := newFakeS3()
		client.getErr = errors.New("operation error S3: GetObject, api error NoSuchKey")

		code, err := NewS3Store(client, "relay", "wm", "", nil).Read(ctx)

		require.NoError(t, err)
		assert.Empty(t, code)
	})

	t.Run("other errors are storage errors", func(t *testing.T) {
		client := newFakeS3()
		client.getErr = errors.New("operation error S3: GetObject, AccessDenied")
		client.putErr = errors.New("operation error S3: PutObject, AccessDenied")
		s := NewS3Store(client, "relay", "wm", "", nil)

		_, err := s.Read(ctx)
		assert.ErrorIs(t, err, relay.ErrStorageUnavailable)
		assert.ErrorIs(t, s.Write(ctx, "SIP-1"), relay.ErrStorageUnavailable)
	})
}

func TestNewS3Client(t *testing.T) {
	t.Run("bucket is required", func(t *testing.T) {
		_, err := NewS3Client(context.Background(), &config.StorageConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("static credentials and custom endpoint", func(t *testing.T) {
		client, err := NewS3Client(context.Background(), &config.StorageConfig{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "relay",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			UsePathStyle:    true,
		})
		require.NoError(t, err)

		opts := client.Options()
		assert.True(t, opts.UsePathStyle)
		assert.Equal(t, "http://localhost:9000", aws.ToString(opts.BaseEndpoint))
		assert.Equal(t, "us-east-1", opts.Region)
	})
}
