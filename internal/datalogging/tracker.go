// Package datalogging 实现手表数据记录会话的路由与状态机
//
// 会话可按任意顺序 open/send/close，且数据经常先于 openSession 到达。
// Tracker 用 pending 队列吸收乱序：先到的数据按会话 ID 暂存，
// openSession 时按到达顺序回放；close 时未匹配到 open 的数据整队丢弃。
package datalogging

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"wisefido-health/internal/models"
)

// BatchProcessor 已解析会话数据块的下游处理器
type BatchProcessor interface {
	HandleBatch(session *models.Session, payload []byte, itemsLeft uint32)
}

// Tracker 会话状态机
//
// 每个会话 ID 的状态：未打开（map 无条目）→ 打开（map 有条目）→
// 关闭（条目移除，ID 可被设备复用为新会话）。
// 不变式：任何数据块只有在能解析出会话上下文（tag/appUUID/itemSize）
// 时才会被处理——要么立即，要么经 pending→flush 路径。
type Tracker struct {
	mu        sync.Mutex
	sessions  map[uint8]*models.Session
	pending   map[uint8][]models.PendingDataItem
	processor BatchProcessor
	logger    *zap.Logger
}

// NewTracker 创建会话状态机
func NewTracker(processor BatchProcessor, logger *zap.Logger) *Tracker {
	return &Tracker{
		sessions:  make(map[uint8]*models.Session),
		pending:   make(map[uint8][]models.PendingDataItem),
		processor: processor,
		logger:    logger,
	}
}

// OpenSession 打开会话
//
// 非健康 tag 忽略。设备 ID 循环复用，覆盖同 ID 的陈旧会话是允许的。
// 打开后立即按到达顺序回放该 ID 的 pending 队列。
func (t *Tracker) OpenSession(id uint8, tag uint32, appUUID uuid.UUID, itemSize uint16) {
	if !models.IsHealthTag(tag) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	session := &models.Session{
		Tag:      tag,
		AppUUID:  appUUID,
		ItemSize: itemSize,
	}
	t.sessions[id] = session

	t.logger.Debug("Datalogging session opened",
		zap.Uint8("session_id", id),
		zap.Uint32("tag", tag),
		zap.String("app_uuid", appUUID.String()),
		zap.Uint16("item_size", itemSize),
	)

	queue, ok := t.pending[id]
	if !ok {
		return
	}
	delete(t.pending, id)

	t.logger.Info("Flushing pending data items",
		zap.Uint8("session_id", id),
		zap.Int("count", len(queue)),
	)
	for _, item := range queue {
		t.processor.HandleBatch(session, item.Payload, item.ItemsLeft)
	}
}

// HandleSendDataItems 处理到达的数据块
//
// 会话尚未打开时进入 pending 队列（竞态路径，绝不静默丢数据）；
// 已打开则立即交给下游处理。
func (t *Tracker) HandleSendDataItems(id uint8, payload []byte, itemsLeft uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[id]
	if !ok {
		// 数据先于 openSession 到达，暂存副本等待回放
		buf := make([]byte, len(payload))
		copy(buf, payload)
		t.pending[id] = append(t.pending[id], models.PendingDataItem{
			Payload:   buf,
			ItemsLeft: itemsLeft,
		})
		t.logger.Debug("Queued data for unopened session",
			zap.Uint8("session_id", id),
			zap.Int("payload_size", len(payload)),
			zap.Int("queue_depth", len(t.pending[id])),
		)
		return
	}

	t.processor.HandleBatch(session, payload, itemsLeft)
}

// CloseSession 关闭会话
//
// 非健康 tag 忽略；会话不存在时为 no-op。从未等到 open 的 pending
// 数据在此整队丢弃（只告警不处理——没有会话上下文无法解释这些字节）。
func (t *Tracker) CloseSession(id uint8, tag uint32) {
	if !models.IsHealthTag(tag) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.sessions, id)

	if queue, ok := t.pending[id]; ok {
		delete(t.pending, id)
		t.logger.Warn("Discarding pending data for session closed without open",
			zap.Uint8("session_id", id),
			zap.Int("discarded_items", len(queue)),
		)
	}

	t.logger.Debug("Datalogging session closed", zap.Uint8("session_id", id))
}

// OpenSessions 返回当前打开的会话数（诊断用）
func (t *Tracker) OpenSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
