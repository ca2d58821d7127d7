package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/metrics"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioSink 将诊断数据以对象形式存入S3兼容存储
type MinioSink struct {
	client     *minio.Client
	bucketName string
	now        func() time.Time
}

// NewMinioSink 创建基于S3协议的诊断出口
func NewMinioSink(cfg config.MinioConfig) (*MinioSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioSink{client: client, bucketName: cfg.Bucket, now: time.Now}, nil
}

// CheckBucket 确认桶存在，不存在时创建
func (s *MinioSink) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		logger.WithField("bucket", s.bucketName).Info("诊断存储桶不存在，正在创建")
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Record 上传一条诊断数据
func (s *MinioSink) Record(ctx context.Context, kind, vin string, payload []byte) error {
	key := objectKey(kind, vin, s.now(), uuid.New())
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{
			ContentType:  "application/octet-stream",
			UserMetadata: map[string]string{"kind": kind, "vin": vin},
		})
	metrics.DiagnosticsRecordsTotal.WithLabelValues(kind, metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("put diagnostic object %s: %w", key, err)
	}
	return nil
}

// objectKey 生成对象键：kind/yyyy/mm/dd/vin/uuid.bin
func objectKey(kind, vin string, at time.Time, id uuid.UUID) string {
	if vin == "" {
		vin = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s/%s.bin", kind, at.UTC().Format("2006/01/02"), vin, id)
}
