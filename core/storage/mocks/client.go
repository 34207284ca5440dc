// Package mocks provides a testify mock of storage.Client.
package mocks

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"

	"termsync/core/storage"
)

var _ storage.Client = (*Client)(nil)

// Client is a mock implementation of storage.Client.
type Client struct {
	mock.Mock
}

// NewClient returns a mock whose expectations are asserted when t ends.
func NewClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *Client {
	m := &Client{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Listing returns a closed channel yielding infos, for ListObjects returns.
func Listing(infos ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(infos))
	for _, o := range infos {
		ch <- o
	}
	close(ch)
	return ch
}

// Body wraps data as a GetObject return value.
func Body(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}

func (m *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *Client) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *Client) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	info, _ := args.Get(0).(minio.UploadInfo)
	return info, args.Error(1)
}

func (m *Client) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	switch v := args.Get(0).(type) {
	case io.ReadCloser:
		return v, args.Error(1)
	case []byte:
		return Body(v), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListObjects accepts either a channel or a []minio.ObjectInfo as return
// value. Anything else yields an empty listing.
func (m *Client) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	switch v := args.Get(0).(type) {
	case <-chan minio.ObjectInfo:
		return v
	case []minio.ObjectInfo:
		return Listing(v...)
	}
	return Listing()
}

func (m *Client) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}
