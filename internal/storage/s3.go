package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// S3ObjectClient implements bm.ObjectClient against an S3-compatible bucket.
// All keys are stored below an optional prefix.
type S3ObjectClient struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3ObjectClient builds a client from the storage config. Static
// credentials are used when an access key is configured; otherwise the
// default AWS credential chain applies.
func NewS3ObjectClient(ctx context.Context, cfg config.StorageConfig) (*S3ObjectClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3ObjectClientWithClient(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3ObjectClientWithClient wraps an existing S3 client.
func NewS3ObjectClientWithClient(client *s3.Client, bucket, prefix string) *S3ObjectClient {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3ObjectClient{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (c *S3ObjectClient) fullKey(key string) string {
	return c.prefix + key
}

// UploadObject streams r into key using multipart upload, so the content
// length does not need to be known up front.
func (c *S3ObjectClient) UploadObject(ctx context.Context, key string, r io.Reader) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.fullKey(key)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// DownloadObject opens key for reading.
func (c *S3ObjectClient) DownloadObject(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.fullKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, mapS3Error(err))
	}
	return resp.Body, nil
}

// RemoveObject deletes key. S3 treats deleting a missing key as success.
func (c *S3ObjectClient) RemoveObject(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.fullKey(key)),
	})
	if err != nil {
		return fmt.Errorf("removing %s: %w", key, mapS3Error(err))
	}
	return nil
}

// ListObjects pages through ListObjectsV2 until limit objects have been seen.
func (c *S3ObjectClient) ListObjects(ctx context.Context, prefix string, limit int) ([]bm.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.fullKey(prefix)),
	}
	if limit > 0 && limit < 1000 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	var objects []bm.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, mapS3Error(err))
		}

		for _, obj := range page.Contents {
			objects = append(objects, bm.ObjectInfo{
				Key:          strings.TrimPrefix(aws.ToString(obj.Key), c.prefix),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if limit > 0 && len(objects) >= limit {
				return objects, nil
			}
		}
	}
	return objects, nil
}

// ObjectSize returns the content length of key.
func (c *S3ObjectClient) ObjectSize(ctx context.Context, key string) (int64, error) {
	resp, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.fullKey(key)),
	})
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", key, mapS3Error(err))
	}
	return aws.ToInt64(resp.ContentLength), nil
}

// ObjectExists reports whether key exists.
func (c *S3ObjectClient) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := c.ObjectSize(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bm.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// CopyObject copies src to dst within the bucket.
func (c *S3ObjectClient) CopyObject(ctx context.Context, src, dst string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(fmt.Sprintf("%s/%s", c.bucket, c.fullKey(src))),
		Key:        aws.String(c.fullKey(dst)),
	})
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, mapS3Error(err))
	}
	return nil
}

// mapS3Error translates missing-object responses into bm.ErrNotFound.
func mapS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", bm.ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", bm.ErrNotFound, err)
		}
	}
	return err
}

// Compile-time check that S3ObjectClient implements bm.ObjectClient
var _ bm.ObjectClient = (*S3ObjectClient)(nil)
