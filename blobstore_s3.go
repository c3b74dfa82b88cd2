package vigil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3BlobStoreConfig configures the S3 dataset store.
type S3BlobStoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // for S3-compatible services (MinIO, etc.)
	// AccessKeyID for authentication. Prefer IAM roles, instance
	// profiles, or environment variables (AWS_ACCESS_KEY_ID,
	// AWS_SECRET_ACCESS_KEY) instead of setting these directly. DO NOT
	// commit credentials to source control.
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // key prefix for all objects
	UsePathStyle    bool

	// MaxRetries bounds upload attempts. Default: 3
	MaxRetries int
}

// S3BlobStore uploads exported datasets to S3 or S3-compatible storage.
type S3BlobStore struct {
	client  *s3.Client
	config  S3BlobStoreConfig
	retryer *Retryer
}

// NewS3BlobStore builds the AWS client and retryer.
func NewS3BlobStore(cfg S3BlobStoreConfig) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, newConfigError("bucket", "bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	retryCfg := DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.MaxRetries

	return &S3BlobStore{
		client:  s3.NewFromConfig(awsCfg, s3Opts...),
		config:  cfg,
		retryer: NewRetryer(retryCfg),
	}, nil
}

// Put uploads a blob with the given content type.
func (s *S3BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	fullKey := s.config.Prefix + key
	err := s.retryer.Do(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(fullKey),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("S3 put object failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return newExportError("upload", key, err)
	}
	return nil
}

// Get downloads a blob.
func (s *S3BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := s.config.Prefix + key
	var data []byte
	err := s.retryer.Do(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			var nsk *s3types.NoSuchKey
			if errors.As(err, &nsk) {
				return fmt.Errorf("S3 object %s not found: %w", fullKey, err)
			}
			return fmt.Errorf("S3 get object failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("S3 read body failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, newExportError("download", key, err)
	}
	return data, nil
}

// List returns keys under a prefix, relative to the configured prefix.
func (s *S3BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.config.Prefix + prefix

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, newExportError("list", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(*obj.Key, s.config.Prefix))
		}
	}
	return keys, nil
}

// Close is a no-op; the SDK client holds no local resources.
func (s *S3BlobStore) Close() error { return nil }
