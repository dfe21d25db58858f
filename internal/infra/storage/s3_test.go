package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"storefront/internal/external"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type s3Mock struct{ mock.Mock }

func (m *s3Mock) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(params.Body)
	args := m.Called(aws.ToString(params.Key), aws.ToString(params.ContentType), string(body))
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *s3Mock) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func TestS3Store_Store(t *testing.T) {
	client := new(s3Mock)
	client.On("PutObject", "files/abc.stl", "application/octet-stream", "solid").Return(nil)

	s := newS3Store(client, "bucket", "http://minio:9000/bucket/", zap.NewNop())
	ref, err := s.Store(context.Background(), "files/abc.stl", "", []byte("solid"))

	require.NoError(t, err)
	assert.Equal(t, "files/abc.stl", ref.ID)
	assert.Equal(t, "http://minio:9000/bucket/files/abc.stl", ref.URL)
	client.AssertExpectations(t)
}

func TestS3Store_StoreFailureIsUnavailable(t *testing.T) {
	client := new(s3Mock)
	client.On("PutObject", "k", "model/stl", "x").Return(errors.New("timeout"))

	s := newS3Store(client, "bucket", "http://x", zap.NewNop())
	_, err := s.Store(context.Background(), "k", "model/stl", []byte("x"))

	assert.ErrorIs(t, err, external.ErrUnavailable)
}

func TestS3Store_Delete(t *testing.T) {
	client := new(s3Mock)
	client.On("DeleteObject", "k").Return(nil)

	s := newS3Store(client, "bucket", "http://x", zap.NewNop())
	assert.NoError(t, s.Delete(context.Background(), "k"))
	client.AssertExpectations(t)
}
