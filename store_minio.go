package filerelay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	_ ObjectStore    = &MinioStore{}
	_ StoreValidator = &MinioStore{}
)

// MinioStore is an ObjectStore backed by minio-go. The client manages
// multipart uploads on its own given the configured part size and threads.
type MinioStore struct {
	client             *minio.Client
	bucket             string
	basePath           string
	multipartThreshold int64
	partSize           int64
	partConcurrency    int
	logger             Logger
}

func NewMinioClient(cfg StorageConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.EndpointHost(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.RegionOrDefault(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio store: create client: %w", err)
	}
	return client, nil
}

func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{
		client:             client,
		bucket:             bucket,
		multipartThreshold: DefaultMultipartThreshold,
		partSize:           DefaultPartSize,
		partConcurrency:    DefaultPartConcurrency,
		logger:             &DefaultLogger{},
	}
}

func (s *MinioStore) WithLogger(logger Logger) *MinioStore {
	s.logger = logger
	return s
}

func (s *MinioStore) WithBasePath(basePath string) *MinioStore {
	s.basePath = basePath
	return s
}

func (s *MinioStore) WithMultipart(threshold, partSize int64, concurrency int) *MinioStore {
	if threshold > 0 {
		s.multipartThreshold = threshold
	}
	if partSize > 0 {
		s.partSize = partSize
	}
	if concurrency > 0 {
		s.partConcurrency = concurrency
	}
	return s
}

func (s *MinioStore) Upload(ctx context.Context, localPath, key, contentType string, progress func(n int64)) (*ObjectRecord, error) {
	if err := validateObjectKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("minio store: open staged file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("minio store: stat staged file: %w", err)
	}

	if contentType == "" {
		contentType = DefaultContentType
	}

	size := info.Size()
	opts := minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: contentDisposition(contentType),
		PartSize:           uint64(s.partSize),
		NumThreads:         uint(s.partConcurrency),
		DisableMultipart:   size <= s.multipartThreshold,
	}

	if progress != nil {
		opts.Progress = progressFunc(progress)
	}

	s.logger.Info("upload object", "bucket", s.bucket, "key", key, "size", size, "content_type", contentType)

	res, err := s.client.PutObject(ctx, s.bucket, s.getKey(key), f, size, opts)
	if err != nil {
		s.logger.Error("minio upload failed", "key", key, "error", err)
		return nil, classifyMinioUploadError(err, size > s.multipartThreshold)
	}

	s.logger.Info("upload object", "key", res.Key, "etag", res.ETag, "size", res.Size)

	return &ObjectRecord{
		Key:         key,
		ContentType: contentType,
		Size:        size,
	}, nil
}

func (s *MinioStore) Download(ctx context.Context, key, localPath string, progress func(n int64)) error {
	if _, err := s.client.StatObject(ctx, s.bucket, s.getKey(key), minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.getKey(key), minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer obj.Close()

	return writeLocal(localPath, &progressReader{reader: obj, report: progress})
}

func (s *MinioStore) HeadInfo(ctx context.Context, key string) (*ObjectInfo, bool) {
	info, err := s.client.StatObject(ctx, s.bucket, s.getKey(key), minio.StatObjectOptions{})
	if err != nil {
		return nil, false
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	return &ObjectInfo{
		Size:         info.Size,
		ContentType:  contentType,
		LastModified: info.LastModified,
	}, true
}

func (s *MinioStore) PresignedURL(ctx context.Context, key string, expires time.Duration, inline bool) (string, error) {
	if expires <= 0 {
		expires = DefaultLinkExpiration
	}

	params := make(url.Values)
	if inline {
		params.Set("response-content-disposition", "inline")
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.getKey(key), expires, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLinkGenerationFailed, err)
	}

	return u.String(), nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.getKey(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MinioStore) Validate(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("minio store: client not configured")
	}

	if s.bucket == "" {
		return fmt.Errorf("minio store: bucket not configured")
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio store: bucket exists: %w: %w", ErrStoreUnavailable, err)
	}

	if !exists {
		return fmt.Errorf("minio store: bucket %q does not exist: %w", s.bucket, ErrStoreUnavailable)
	}

	return nil
}

func (s *MinioStore) getKey(key string) string {
	if s.basePath == "" {
		return key
	}
	return path.Join(s.basePath, key)
}

// progressFunc satisfies the io.Reader minio-go drains as parts are sent.
type progressFunc func(n int64)

func (f progressFunc) Read(p []byte) (int, error) {
	f(int64(len(p)))
	return len(p), nil
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

func classifyMinioUploadError(err error, multipart bool) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "EntityTooLarge" || resp.StatusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %w", ErrObjectTooLarge, err)
	case multipart && resp.Code != "" && resp.Code != "AccessDenied" && resp.Code != "InvalidAccessKeyId":
		return fmt.Errorf("%w: %w", ErrPartialUploadFailure, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
