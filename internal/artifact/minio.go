package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectAPI is the subset of *minio.Client the store needs
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	region          string
	accessKey       string
	secretAccessKey string
	publicBaseURL   string
	cacheControl    string
	useSSL          bool
	timeout         time.Duration
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		cacheControl: "public, max-age=31536000, immutable",
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// MinioStore stores artifacts in an S3 compatible bucket
type MinioStore struct {
	cfg    *minioConfig
	client objectAPI
	logger *slog.Logger
}

// NewMinioStore creates a new S3 compatible artifact store
func NewMinioStore(logger *slog.Logger, opts ...MinioOpts) (*MinioStore, error) {
	cfg := newConfig(opts...)

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return newMinioStore(client, cfg, logger), nil
}

func newMinioStore(client objectAPI, cfg *minioConfig, logger *slog.Logger) *MinioStore {
	if cfg.publicBaseURL == "" {
		scheme := "http"
		if cfg.useSSL {
			scheme = "https"
		}
		cfg.publicBaseURL = scheme + "://" + cfg.endpoint
	}
	return &MinioStore{cfg: cfg, client: client, logger: logger}
}

// EnsureBucket creates the bucket when it does not exist
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.bucket)
	if err != nil {
		return fmt.Errorf("%w: check bucket %s: %w", domain.ErrStorage, s.cfg.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.bucket, minio.MakeBucketOptions{Region: s.cfg.region}); err != nil {
		return fmt.Errorf("%w: create bucket %s: %w", domain.ErrStorage, s.cfg.bucket, err)
	}
	s.logger.Info("Created artifact bucket", slog.String("bucket", s.cfg.bucket))
	return nil
}

// Put uploads data under key. When key is already taken a random
// suffix is added instead of overwriting.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	taken, err := s.exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if taken {
		original := key
		ext := path.Ext(key)
		key = strings.TrimSuffix(key, ext) + "_" + uuid.NewString()[:8] + ext
		s.logger.Warn("Artifact key already exists, using a new key",
			slog.String("key", original),
			slog.String("new_key", key),
		)
	}

	info, err := s.client.PutObject(ctx, s.cfg.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: s.cfg.cacheControl,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: put %s: %w", domain.ErrStorage, key, err)
	}

	return &Object{
		Key:  info.Key,
		URL:  s.PublicURL(info.Key),
		Size: info.Size,
	}, nil
}

// PublicURL returns the public address of key
func (s *MinioStore) PublicURL(key string) string {
	return strings.TrimRight(s.cfg.publicBaseURL, "/") + "/" + s.cfg.bucket + "/" + key
}

func (s *MinioStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %w", domain.ErrStorage, key, err)
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		c.region = region
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

func WithPublicBaseURL(baseURL string) MinioOpts {
	return func(c *minioConfig) {
		c.publicBaseURL = baseURL
	}
}

// WithTimeout bounds a single Put, existence check included
func WithTimeout(timeout time.Duration) MinioOpts {
	return func(c *minioConfig) {
		c.timeout = timeout
	}
}
