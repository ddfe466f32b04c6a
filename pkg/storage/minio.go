// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"jotium-go/internal/config"
	"jotium-go/pkg/log"
)

// AttachmentStore 归档用户随消息上传的图片。
type AttachmentStore interface {
	PutAttachment(ctx context.Context, userID, conversationID, fileName, mimeType string, data []byte) (string, error)
	PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// MinIOStore 是基于 MinIO 的 AttachmentStore 实现。
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIOStore(ctx context.Context, cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
	return &MinIOStore{client: client, bucket: cfg.BucketName}, nil
}

// PutAttachment 上传一张图片，返回对象 key。
func (s *MinIOStore) PutAttachment(ctx context.Context, userID, conversationID, fileName, mimeType string, data []byte) (string, error) {
	key := AttachmentKey(userID, conversationID, fileName, time.Now())
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("上传附件失败: %w", err)
	}
	log.Infof("附件已归档, bucket: %s, key: %s, size: %d", s.bucket, key, len(data))
	return key, nil
}

// PresignedURL 为已归档的对象生成一个临时下载链接。
func (s *MinIOStore) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}

// AttachmentKey 生成对象 key：attachments/{userID}/{conversationID}/{yyyymmdd}/{uuid}{ext}。
func AttachmentKey(userID, conversationID, fileName string, now time.Time) string {
	ext := strings.ToLower(path.Ext(fileName))
	return path.Join("attachments", sanitize(userID), sanitize(conversationID), now.UTC().Format("20060102"), uuid.NewString()+ext)
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
