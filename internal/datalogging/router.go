package datalogging

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"wisefido-health/internal/codec"
	"wisefido-health/internal/models"
)

// FirmwareUploader 固件诊断块的外部上传器（fire-and-forget）
type FirmwareUploader interface {
	UploadChunk(chunk []byte, watch models.WatchInfo)
}

// Router 块路由器（无状态分发）
//
// 健康 tag 转发给会话状态机；系统应用的 Memfault tag 解码后交给
// 上传器；其余 tag 一律忽略（预期内的良性情况，不是错误）。
type Router struct {
	tracker  *Tracker
	uploader FirmwareUploader
	logger   *zap.Logger
}

// NewRouter 创建块路由器
func NewRouter(tracker *Tracker, uploader FirmwareUploader, logger *zap.Logger) *Router {
	return &Router{
		tracker:  tracker,
		uploader: uploader,
		logger:   logger,
	}
}

// OpenSession 处理 openSession 帧（仅健康 tag 转发）
func (r *Router) OpenSession(sessionID uint8, tag uint32, appUUID uuid.UUID, itemSize uint16) {
	if !models.IsHealthTag(tag) {
		return
	}
	r.tracker.OpenSession(sessionID, tag, appUUID, itemSize)
}

// SendData 处理 sendData 帧
func (r *Router) SendData(sessionID uint8, tag uint32, appUUID uuid.UUID, payload []byte, itemsLeft uint32, watch models.WatchInfo) {
	if models.IsHealthTag(tag) {
		r.tracker.HandleSendDataItems(sessionID, payload, itemsLeft)
		return
	}

	if appUUID == models.SystemAppUUID && tag == models.TagMemfaultChunks {
		chunk, err := codec.ParseMemfaultChunk(payload)
		if err != nil {
			// fail closed：丢块，不让坏前缀影响路由
			r.logger.Warn("Dropping malformed memfault chunk",
				zap.Uint8("session_id", sessionID),
				zap.Int("payload_size", len(payload)),
				zap.Error(err),
			)
			return
		}
		r.uploader.UploadChunk(chunk.Bytes, watch)
		return
	}

	// 其余 tag 忽略
}

// CloseSession 处理 closeSession 帧（仅健康 tag 转发）
func (r *Router) CloseSession(sessionID uint8, tag uint32) {
	if !models.IsHealthTag(tag) {
		return
	}
	r.tracker.CloseSession(sessionID, tag)
}
