// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"docuquery-go/internal/config"
	"docuquery-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore 抽象了原始文件字节的存取。
// Store 返回一个不透明的句柄，Fetch 凭句柄取回完整内容。
type ObjectStore interface {
	Store(ctx context.Context, data []byte, objectName string) (string, error)
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

// MinIOStore 是 ObjectStore 的 MinIO 实现，句柄即对象名。
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIO(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	// 检查存储桶是否存在，不存在则创建
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}

	log.Info("MinIO 客户端初始化成功")
	return &MinIOStore{client: client, bucket: cfg.BucketName}, nil
}

// Store 将字节写入对象存储并返回句柄（对象名）。
func (s *MinIOStore) Store(ctx context.Context, data []byte, objectName string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return "", fmt.Errorf("写入 MinIO 对象失败: %w", err)
	}
	return objectName, nil
}

// Fetch 根据句柄取回对象的完整内容。
func (s *MinIOStore) Fetch(ctx context.Context, handle string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("从 MinIO 下载对象失败: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	return data, nil
}
