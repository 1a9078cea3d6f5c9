package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/logger"
)

// ObjectStore 原始文档对象存储接口
type ObjectStore interface {
	Upload(ctx context.Context, objectKey string, file io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectKey string) error
	PresignedURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
	Ready() bool
}

// MinIOStore 基于MinIO的对象存储
type MinIOStore struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

// NewMinIOStore 创建MinIO对象存储并确保bucket存在
func NewMinIOStore(cfg config.StorageConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "documents"
	}

	// minio.New 的endpoint不带协议前缀
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := &MinIOStore{
		client: client,
		bucket: bucket,
		log:    logger.GetLogger(),
	}

	if err := store.ensureBucket(); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureBucket 带重试检查并创建bucket，给容器化的MinIO留启动时间
func (s *MinIOStore) ensureBucket() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var exists bool
	var err error
	for i := 0; i < 5; i++ {
		exists, err = s.client.BucketExists(ctx, s.bucket)
		if err == nil {
			break
		}
		if i < 4 {
			wait := time.Second * time.Duration((i+1)*2)
			s.log.Warn("minio connection failed, retrying",
				zap.Int("attempt", i+1),
				zap.Duration("wait", wait),
				zap.Error(err))
			time.Sleep(wait)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}

	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil {
		errStr := err.Error()
		// 并发启动时其他实例可能已经建好
		if strings.Contains(errStr, "BucketAlreadyExists") ||
			strings.Contains(errStr, "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}

	s.log.Info("created minio bucket", zap.String("bucket", s.bucket))
	return nil
}

func (s *MinIOStore) Ready() bool {
	return s != nil && s.client != nil
}

// Upload 上传原始文件
func (s *MinIOStore) Upload(ctx context.Context, objectKey string, file io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, file, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectKey, err)
	}
	return nil
}

// Download 下载原始文件
func (s *MinIOStore) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download object %s: %w", objectKey, err)
	}
	return object, nil
}

// Delete 删除原始文件
func (s *MinIOStore) Delete(ctx context.Context, objectKey string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{})
}

// PresignedURL 生成预签名下载链接
func (s *MinIOStore) PresignedURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	if expires == 0 {
		expires = 24 * time.Hour
	}
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expires, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

// DocumentObjectKey 计算文档原始文件的对象键
func DocumentObjectKey(documentID, filename string) string {
	return fmt.Sprintf("documents/%s/%s", documentID, filename)
}

// NoopObjectStore 未配置对象存储时的空实现
type NoopObjectStore struct{}

func (NoopObjectStore) Upload(ctx context.Context, objectKey string, file io.Reader, size int64, contentType string) error {
	return nil
}

func (NoopObjectStore) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("object storage not configured")
}

func (NoopObjectStore) Delete(ctx context.Context, objectKey string) error { return nil }

func (NoopObjectStore) PresignedURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	return "", fmt.Errorf("object storage not configured")
}

func (NoopObjectStore) Ready() bool { return false }
