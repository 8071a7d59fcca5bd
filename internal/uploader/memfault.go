// Package uploader 上传固件诊断块到 Memfault
package uploader

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"wisefido-health/internal/models"
)

// MemfaultUploader Memfault chunks API 客户端（fire-and-forget）
type MemfaultUploader struct {
	client     *resty.Client
	projectKey string
	logger     *zap.Logger
}

// NewMemfaultUploader 创建上传器
func NewMemfaultUploader(chunksURL, projectKey string, logger *zap.Logger) *MemfaultUploader {
	client := resty.New().SetBaseURL(chunksURL)
	return &MemfaultUploader{
		client:     client,
		projectKey: projectKey,
		logger:     logger,
	}
}

// UploadChunk 异步上传一个诊断块，以手表序列号标注设备身份
//
// 调用方不等待结果；上传失败只记录日志（Memfault 链路自带重传，
// 丢一个块不影响健康数据通路）。
func (u *MemfaultUploader) UploadChunk(chunk []byte, watch models.WatchInfo) {
	go func() {
		resp, err := u.client.R().
			SetHeader("Memfault-Project-Key", u.projectKey).
			SetHeader("Content-Type", "application/octet-stream").
			SetBody(chunk).
			Post(fmt.Sprintf("/api/v0/chunks/%s", watch.SerialNumber))

		if err != nil {
			u.logger.Error("Failed to upload memfault chunk",
				zap.String("serial_number", watch.SerialNumber),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return
		}
		if resp.IsError() {
			u.logger.Error("Memfault chunk upload rejected",
				zap.String("serial_number", watch.SerialNumber),
				zap.Int("status", resp.StatusCode()),
			)
			return
		}

		u.logger.Debug("Uploaded memfault chunk",
			zap.String("serial_number", watch.SerialNumber),
			zap.Int("chunk_size", len(chunk)),
		)
	}()
}
