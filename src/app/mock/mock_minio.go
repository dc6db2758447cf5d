package minio_mock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// MockClient is an in-memory bucket store satisfying app.ClientMinio.
// Setting one of the *Err fields makes the matching call fail.
type MockClient struct {
	mu      sync.Mutex
	objects map[string]map[string]minio.ObjectInfo

	ListErr   error
	PutErr    error
	RemoveErr error
	StatErr   error

	Puts    int
	Removes int
}

func NewMockClient() *MockClient {
	return &MockClient{objects: make(map[string]map[string]minio.ObjectInfo)}
}

// Seed stores an object with the given size without reading a body.
func (m *MockClient) Seed(bucketName, key string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(bucketName)[key] = minio.ObjectInfo{Key: key, Size: size, LastModified: time.Now()}
}

// Has reports whether key exists.
func (m *MockClient) Has(bucketName, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bucket(bucketName)[key]
	return ok
}

func (m *MockClient) bucket(name string) map[string]minio.ObjectInfo {
	b, ok := m.objects[name]
	if !ok {
		b = make(map[string]minio.ObjectInfo)
		m.objects[name] = b
	}
	return b
}

func (m *MockClient) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	m.mu.Lock()
	keys := make([]string, 0)
	for key := range m.bucket(bucketName) {
		if !strings.HasPrefix(key, opts.Prefix) || key <= opts.StartAfter {
			continue
		}
		if !opts.Recursive && strings.Contains(strings.TrimPrefix(key, opts.Prefix), "/") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	infos := make([]minio.ObjectInfo, 0, len(keys))
	for _, key := range keys {
		infos = append(infos, m.objects[bucketName][key])
	}
	listErr := m.ListErr
	m.mu.Unlock()

	ch := make(chan minio.ObjectInfo)
	go func() {
		defer close(ch)
		if listErr != nil {
			select {
			case ch <- minio.ObjectInfo{Err: listErr}:
			case <-ctx.Done():
			}
			return
		}
		for _, info := range infos {
			select {
			case ch <- info:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (m *MockClient) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	return &url.URL{
		Scheme:   "https",
		Host:     "example.com",
		Path:     "/" + bucketName + "/" + objectName,
		RawQuery: reqParams.Encode(),
	}, nil
}

func (m *MockClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if m.PutErr != nil {
		return minio.UploadInfo{}, m.PutErr
	}
	n, err := io.Copy(io.Discard, reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	m.bucket(bucketName)[objectName] = minio.ObjectInfo{Key: objectName, Size: n, LastModified: time.Now(), ContentType: opts.ContentType}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: n}, nil
}

func (m *MockClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removes++
	delete(m.bucket(bucketName), objectName)
	return nil
}

func (m *MockClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if m.StatErr != nil {
		return minio.ObjectInfo{}, m.StatErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.bucket(bucketName)[objectName]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{
			Code:       "NoSuchKey",
			Message:    fmt.Sprintf("%s does not exist", objectName),
			StatusCode: http.StatusNotFound,
		}
	}
	return info, nil
}
