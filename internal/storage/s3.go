package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3Storage stores chunk archives in an S3 bucket or an S3-compatible store.
type S3Storage struct {
	client *s3.Client
	bucket string
	cfg    S3Config
	logger *zap.Logger
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint     string
	UsePathStyle bool

	MultipartConfig MultipartUploadConfig
	Retry           RetryPolicy
}

// RetryPolicy controls how failed requests are retried. Attempt n waits
// BaseDelay * 2^n before the next one.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:          "us-east-1",
		MultipartConfig: DefaultMultipartConfig(),
		Retry:           RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond},
	}
}

// NewS3Storage loads the default AWS credential chain and connects to bucket.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config, logger *zap.Logger) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg, logger), nil
}

// NewS3StorageWithClient wraps a configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config, logger *zap.Logger) *S3Storage {
	if cfg.MultipartConfig.PartSize <= 0 {
		cfg.MultipartConfig = DefaultMultipartConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Storage{
		client: client,
		bucket: bucket,
		cfg:    cfg,
		logger: logger.Named("s3").With(zap.String("bucket", bucket)),
	}
}

// Put uploads data, switching to a multipart upload above the part size.
func (s *S3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	if int64(len(data)) <= s.cfg.MultipartConfig.PartSize {
		return s.put(ctx, key, data, nil)
	}

	var etag string
	err := s.retry(ctx, "put_multipart", key, func() error {
		var err error
		etag, err = s.putMultipart(ctx, key, data)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return etag, nil
}

// ConditionalPut uploads data only if the object's current ETag is etag.
func (s *S3Storage) ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error) {
	return s.put(ctx, key, data, &etag)
}

func (s *S3Storage) put(ctx context.Context, key string, data []byte, ifMatch *string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	switch {
	case ifMatch == nil:
	case *ifMatch == "":
		input.IfNoneMatch = aws.String("*")
	default:
		input.IfMatch = ifMatch
	}

	var etag string
	err := s.retry(ctx, "put", key, func() error {
		input.Body = bytes.NewReader(data)
		resp, err := s.client.PutObject(ctx, input)
		if err != nil {
			if isPreconditionFailed(err) {
				return ErrPreconditionFailed
			}
			return err
		}
		etag = aws.ToString(resp.ETag)
		return nil
	})
	switch {
	case err == nil:
		return etag, nil
	case errors.Is(err, ErrPreconditionFailed):
		return "", err
	default:
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
}

// partRange is the byte span [Start, End) of one multipart upload part.
type partRange struct {
	Start, End int64
}

// splitParts cuts size bytes into parts of at most partSize bytes.
func splitParts(size, partSize int64) []partRange {
	parts := make([]partRange, 0, (size+partSize-1)/partSize)
	for start := int64(0); start < size; start += partSize {
		parts = append(parts, partRange{Start: start, End: min(start+partSize, size)})
	}
	return parts
}

func (s *S3Storage) putMultipart(ctx context.Context, key string, data []byte) (string, error) {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	uploadID := created.UploadId

	parts := splitParts(int64(len(data)), s.cfg.MultipartConfig.PartSize)
	completed := make([]types.CompletedPart, 0, len(parts))
	for i, p := range parts {
		partNum := aws.Int32(int32(i + 1))
		resp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    partNum,
			Body:          bytes.NewReader(data[p.Start:p.End]),
			ContentLength: aws.Int64(p.End - p.Start),
		})
		if err != nil {
			s.abortMultipartUpload(ctx, key, uploadID)
			return "", err
		}
		completed = append(completed, types.CompletedPart{ETag: resp.ETag, PartNumber: partNum})
	}

	resp, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		s.abortMultipartUpload(ctx, key, uploadID)
		return "", err
	}
	s.logger.Debug("Multipart upload complete", zap.String("key", key), zap.Int("parts", len(parts)))
	return aws.ToString(resp.ETag), nil
}

func (s *S3Storage) abortMultipartUpload(ctx context.Context, key string, uploadID *string) {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if err != nil {
		s.logger.Warn("Failed to abort multipart upload", zap.String("key", key), zap.Error(err))
	}
}

// Get downloads the object stored under key.
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.retry(ctx, "get", key, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return ErrObjectNotFound
			}
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, ErrObjectNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
}

// Delete removes key. S3 treats deleting a missing key as success.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	err := s.retry(ctx, "delete", key, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.retry(ctx, "head", key, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		var notFound *types.NotFound
		switch {
		case err == nil:
			exists = true
		case errors.As(err, &notFound):
			exists = false
		default:
			return err
		}
		return nil
	})
	return exists, err
}

// List pages through every key under prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// isPreconditionFailed reports whether S3 rejected a conditional write.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

func (s *S3Storage) retry(ctx context.Context, op, key string, fn func() error) error {
	return retry(ctx, s.cfg.Retry, func(attempt int, err error) {
		s.logger.Debug("Retrying request",
			zap.String("op", op),
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}, fn)
}

// retry runs fn until it succeeds, fails permanently or policy runs out.
// Missing objects and failed preconditions are permanent. onRetry is called
// before every wait.
func retry(ctx context.Context, policy RetryPolicy, onRetry func(attempt int, err error), fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn()
		if err == nil || errors.Is(err, ErrPreconditionFailed) || errors.Is(err, ErrObjectNotFound) {
			return err
		}
		if attempt >= policy.MaxRetries {
			return err
		}

		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.BaseDelay << attempt):
		}
	}
}
