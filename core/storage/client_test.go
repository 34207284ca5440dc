package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"termsync/core/storage"
	"termsync/core/storage/mocks"
)

func TestNewClient(t *testing.T) {
	t.Run("PlainEndpoint", func(t *testing.T) {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  "localhost:9000",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			Bucket:    "termsync",
			Region:    "us-east-1",
		})
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("SchemeIsStripped", func(t *testing.T) {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "testkey",
			SecretKey: "testsecret",
			UseSSL:    true,
		})
		assert.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Exists", func(t *testing.T) {
		m := new(mocks.Client)
		m.On("BucketExists", ctx, "b").Return(true, nil)
		assert.NoError(t, storage.EnsureBucket(ctx, m, "b"))
		m.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Created", func(t *testing.T) {
		m := new(mocks.Client)
		m.On("BucketExists", ctx, "b").Return(false, nil)
		m.On("MakeBucket", ctx, "b", minio.MakeBucketOptions{}).Return(nil)
		assert.NoError(t, storage.EnsureBucket(ctx, m, "b"))
		m.AssertExpectations(t)
	})

	t.Run("CheckFails", func(t *testing.T) {
		m := new(mocks.Client)
		m.On("BucketExists", ctx, "b").Return(false, errors.New("denied"))
		assert.Error(t, storage.EnsureBucket(ctx, m, "b"))
	})
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, storage.IsNotFound(nil))
	assert.False(t, storage.IsNotFound(errors.New("boom")))
	assert.True(t, storage.IsNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
}
