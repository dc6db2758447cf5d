package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	cfg "photomatch/src/configuration"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type ClientMinio interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type MinioS3Client struct {
	endpoint   string
	useSSL     bool
	bucketName string
	partSize   uint64
	threads    uint
	urlExpiry  time.Duration
	client     ClientMinio
	log        zerolog.Logger
}

// ObjectMeta is the subset of object metadata the core relies on.
type ObjectMeta struct {
	Key          string
	Size         int64
	LastModified time.Time
}

const (
	defaultContentType = "application/octet-stream"
	defaultURLExpiry   = 7 * 24 * time.Hour
)

// NewMinioS3Client creates a new MinioS3Client instance.
func NewMinioS3Client(props cfg.S3Properties, logger zerolog.Logger) (*MinioS3Client, error) {
	minioClient, err := minio.New(props.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(props.AccessKey, props.SecretKey, ""),
		Secure: props.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", props.Host, err)
	}
	s3 := NewMinioS3ClientWith(minioClient, props.Host, props.Bucket, props.UseSSL, logger)
	s3.partSize = props.PartSize
	s3.threads = props.Threads
	if props.URLExpiry > 0 {
		s3.urlExpiry = props.URLExpiry
	}
	return s3, nil
}

// NewMinioS3ClientWith wraps an existing client, typically a fake in tests.
func NewMinioS3ClientWith(client ClientMinio, endpoint, bucketName string, useSSL bool, logger zerolog.Logger) *MinioS3Client {
	return &MinioS3Client{
		endpoint:   endpoint,
		useSSL:     useSSL,
		bucketName: bucketName,
		urlExpiry:  defaultURLExpiry,
		client:     client,
		log:        logger.With().Str("component", "s3").Str("bucket", bucketName).Logger(),
	}
}

func (s3 *MinioS3Client) Bucket() string { return s3.bucketName }

// ListPage lists up to limit objects under prefix whose extension is in
// filters, starting after the key startAfter. next is empty when the listing
// is exhausted.
func (s3 *MinioS3Client) ListPage(ctx context.Context, prefix, startAfter string, limit int, filters []string) (objects []ObjectMeta, next string, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectCh := s3.client.ListObjects(ctx, s3.bucketName, minio.ListObjectsOptions{
		Prefix:     prefix,
		StartAfter: startAfter,
		Recursive:  true,
	})
	objects = make([]ObjectMeta, 0, limit)
	for object := range objectCh {
		if object.Err != nil {
			return objects, "", External("blob store", object.Err)
		}
		if len(filters) > 0 && !checkIn(object.Key, filters) {
			continue
		}
		if len(objects) == limit {
			// one more match exists beyond this page
			return objects, objects[len(objects)-1].Key, nil
		}
		objects = append(objects, ObjectMeta{Key: object.Key, Size: object.Size, LastModified: object.LastModified})
	}
	return objects, "", nil
}

// ListAll lists every object under prefix.
func (s3 *MinioS3Client) ListAll(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	result := make([]ObjectMeta, 0)
	for object := range s3.client.ListObjects(ctx, s3.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return result, External("blob store", object.Err)
		}
		result = append(result, ObjectMeta{Key: object.Key, Size: object.Size, LastModified: object.LastModified})
	}
	return result, nil
}

// PresignedURL generates a download URL for key.
func (s3 *MinioS3Client) PresignedURL(ctx context.Context, key string) (string, error) {
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	presignedURL, err := s3.client.PresignedGetObject(ctx, s3.bucketName, key, s3.urlExpiry, reqParams)
	if err != nil {
		return "", External("blob store", err)
	}
	return presignedURL.String(), nil
}

// ObjectURL is the absolute reference of key in the bucket.
func (s3 *MinioS3Client) ObjectURL(key string) string {
	scheme := "http"
	if s3.useSSL {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: s3.endpoint, Path: "/" + s3.bucketName + "/" + strings.TrimPrefix(key, "/")}
	return u.String()
}

// KeyFromURL reverses ObjectURL. Plain keys are returned unchanged.
func (s3 *MinioS3Client) KeyFromURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ref
	}
	return strings.TrimPrefix(u.Path, "/"+s3.bucketName+"/")
}

// Stat returns the byte length of key. The store does not report size on
// delete, so callers stat first.
func (s3 *MinioS3Client) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s3.client.StatObject(ctx, s3.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("object %s: %w", key, ErrNotFound)
		}
		return 0, External("blob store", err)
	}
	return info.Size, nil
}

// UploadFile uploads object under uploadPath and returns the stored size.
// Large objects are sent as concurrent multi-part uploads.
func (s3 *MinioS3Client) UploadFile(ctx context.Context, uploadPath string, object io.Reader, size int64, contentType string) (int64, error) {
	if contentType == "" {
		contentType = defaultContentType
	}
	info, err := s3.client.PutObject(ctx,
		s3.bucketName,
		uploadPath,
		object,
		size,
		minio.PutObjectOptions{ContentType: contentType, PartSize: s3.partSize, NumThreads: s3.threads})
	if err != nil {
		return 0, External("blob store", err)
	}
	s3.log.Debug().Str("key", uploadPath).Int64("size", info.Size).Msg("uploaded object")
	return info.Size, nil
}

func (s3 *MinioS3Client) DeleteFile(ctx context.Context, fileName string) error {
	err := s3.client.RemoveObject(ctx, s3.bucketName, fileName, minio.RemoveObjectOptions{})
	if err != nil {
		s3.log.Error().Err(err).Str("key", fileName).Msg("remove failed")
		return External("blob store", err)
	}
	s3.log.Debug().Str("key", fileName).Msg("removed object")
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return true
	}
	return errors.Is(err, ErrNotFound)
}

func checkIn(key string, filters []string) bool {
	parsed := strings.Split(key, ".")
	if len(parsed) > 1 {
		ext := strings.ToLower(parsed[len(parsed)-1])
		for _, f := range filters {
			if f == ext {
				return true
			}
		}
	}
	return false
}
