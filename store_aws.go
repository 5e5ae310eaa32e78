package filerelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/goliatone/go-print"
	"golang.org/x/sync/errgroup"
)

var (
	_ ObjectStore    = &S3Store{}
	_ StoreValidator = &S3Store{}
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

type s3PresignClient interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store is the ObjectStore backed by the AWS SDK. It works against any S3
// compatible endpoint (Wasabi, AWS, MinIO in path style).
type S3Store struct {
	client             s3API
	presigner          s3PresignClient
	bucket             string
	basePath           string
	multipartThreshold int64
	partSize           int64
	partConcurrency    int
	logger             Logger
}

func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:             client,
		presigner:          s3.NewPresignClient(client),
		bucket:             bucket,
		multipartThreshold: DefaultMultipartThreshold,
		partSize:           DefaultPartSize,
		partConcurrency:    DefaultPartConcurrency,
		logger:             &DefaultLogger{},
	}
}

// NewS3Client builds an SDK client from the storage configuration. Static
// credentials are used when both keys are set, otherwise the default chain.
func NewS3Client(ctx context.Context, cfg StorageConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.RegionOrDefault()),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 store: load aws config: %w", err)
	}

	endpoint := cfg.EndpointURL()
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return client, nil
}

func (s *S3Store) WithLogger(logger Logger) *S3Store {
	s.logger = logger
	return s
}

func (s *S3Store) WithBasePath(basePath string) *S3Store {
	s.basePath = basePath
	return s
}

// WithMultipart overrides the multipart threshold, part size and the number of
// parts uploaded in parallel. Non-positive values keep the current setting.
func (s *S3Store) WithMultipart(threshold, partSize int64, concurrency int) *S3Store {
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

func (s *S3Store) Upload(ctx context.Context, localPath, key, contentType string, progress func(n int64)) (*ObjectRecord, error) {
	if err := validateObjectKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("s3 store: open staged file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("s3 store: stat staged file: %w", err)
	}

	if contentType == "" {
		contentType = DefaultContentType
	}

	size := info.Size()
	s.logger.Info("upload object", "bucket", s.bucket, "key", key, "size", size, "content_type", contentType)

	if size > s.multipartThreshold {
		err = s.uploadMultipart(ctx, f, size, key, contentType, progress)
	} else {
		err = s.putObject(ctx, f, size, key, contentType, progress)
	}
	if err != nil {
		s.logger.Error("S3 upload failed", "key", key, "error", err)
		return nil, err
	}

	return &ObjectRecord{
		Key:         key,
		ContentType: contentType,
		Size:        size,
	}, nil
}

func (s *S3Store) putObject(ctx context.Context, f *os.File, size int64, key, contentType string, progress func(n int64)) error {
	input := &s3.PutObjectInput{
		Bucket:        s.bucketPtr(),
		Key:           s.getKey(key),
		Body:          newSeekingProgressReader(io.NewSectionReader(f, 0, size), progress),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}

	if disposition := contentDisposition(contentType); disposition != "" {
		input.ContentDisposition = aws.String(disposition)
	}

	res, err := s.client.PutObject(ctx, input)
	if err != nil {
		return classifyUploadError(err, ErrStoreUnavailable)
	}

	s.logger.Info("upload object", "res", print.MaybeHighlightJSON(res))
	return nil
}

func (s *S3Store) uploadMultipart(ctx context.Context, f *os.File, size int64, key, contentType string, progress func(n int64)) error {
	input := &s3.CreateMultipartUploadInput{
		Bucket:      s.bucketPtr(),
		Key:         s.getKey(key),
		ContentType: aws.String(contentType),
	}

	if disposition := contentDisposition(contentType); disposition != "" {
		input.ContentDisposition = aws.String(disposition)
	}

	resp, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return classifyUploadError(err, ErrStoreUnavailable)
	}

	uploadID := aws.ToString(resp.UploadId)
	numParts := partCount(size, s.partSize)
	parts := make([]types.CompletedPart, numParts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.partConcurrency)

	for i := 0; i < numParts; i++ {
		g.Go(func() error {
			offset := int64(i) * s.partSize
			length := min(s.partSize, size-offset)
			partNumber := aws.Int32(int32(i + 1))

			out, err := s.client.UploadPart(gctx, &s3.UploadPartInput{
				Bucket:        s.bucketPtr(),
				Key:           s.getKey(key),
				UploadId:      aws.String(uploadID),
				PartNumber:    partNumber,
				Body:          newSeekingProgressReader(io.NewSectionReader(f, offset, length), progress),
				ContentLength: aws.Int64(length),
			})
			if err != nil {
				return fmt.Errorf("upload part %d: %w", i+1, err)
			}

			parts[i] = types.CompletedPart{
				ETag:       out.ETag,
				PartNumber: partNumber,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.abortMultipart(ctx, key, uploadID)
		return classifyUploadError(err, ErrPartialUploadFailure)
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   s.bucketPtr(),
		Key:      s.getKey(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		s.abortMultipart(ctx, key, uploadID)
		return classifyUploadError(fmt.Errorf("complete multipart upload: %w", err), ErrPartialUploadFailure)
	}

	s.logger.Info("multipart upload completed", "key", key, "parts", numParts, "upload_id", uploadID)
	return nil
}

// abortMultipart is best effort, orphaned parts are left to bucket lifecycle rules.
func (s *S3Store) abortMultipart(ctx context.Context, key, uploadID string) {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   s.bucketPtr(),
		Key:      s.getKey(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		s.logger.Error("abort multipart upload failed", "key", key, "upload_id", uploadID, "error", err)
	}
}

func (s *S3Store) Download(ctx context.Context, key, localPath string, progress func(n int64)) error {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.bucketPtr(),
		Key:    s.getKey(key),
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.bucketPtr(),
		Key:    s.getKey(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	return writeLocal(localPath, &progressReader{reader: out.Body, report: progress})
}

func (s *S3Store) HeadInfo(ctx context.Context, key string) (*ObjectInfo, bool) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.bucketPtr(),
		Key:    s.getKey(key),
	})
	if err != nil {
		return nil, false
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = DefaultContentType
	}

	return &ObjectInfo{
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  contentType,
		LastModified: aws.ToTime(out.LastModified),
	}, true
}

func (s *S3Store) PresignedURL(ctx context.Context, key string, expires time.Duration, inline bool) (string, error) {
	if s.presigner == nil {
		return "", fmt.Errorf("%w: presign client not configured", ErrLinkGenerationFailed)
	}

	if expires <= 0 {
		expires = DefaultLinkExpiration
	}

	input := &s3.GetObjectInput{
		Bucket: s.bucketPtr(),
		Key:    s.getKey(key),
	}

	if inline {
		input.ResponseContentDisposition = aws.String("inline")
	}

	req, err := s.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLinkGenerationFailed, err)
	}

	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.bucketPtr(),
		Key:    s.getKey(key),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *S3Store) Validate(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 store: client not configured")
	}

	if s.bucket == "" {
		return fmt.Errorf("s3 store: bucket not configured")
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: s.bucketPtr()})
	if err != nil {
		return fmt.Errorf("s3 store: head bucket: %w: %w", ErrStoreUnavailable, err)
	}

	return nil
}

func (s *S3Store) bucketPtr() *string {
	return aws.String(s.bucket)
}

func (s *S3Store) getKey(key string) *string {
	if s.basePath == "" {
		return aws.String(key)
	}
	return aws.String(path.Join(s.basePath, key))
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	return false
}

func classifyUploadError(err error, fallback error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "EntityTooLarge", "MaxMessageLengthExceeded":
			return fmt.Errorf("%w: %w", ErrObjectTooLarge, err)
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}

// writeLocal streams src into a new file at localPath, removing it again if
// the copy fails.
func writeLocal(localPath string, src io.Reader) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}

	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(f, src, buf); err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("close local file: %w", err)
	}

	return nil
}
