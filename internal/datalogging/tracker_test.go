package datalogging

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wisefido-health/internal/models"
)

// recordingProcessor 同步记录下游收到的批次
type recordingProcessor struct {
	mu      sync.Mutex
	batches []processedBatch
}

type processedBatch struct {
	session   *models.Session
	payload   []byte
	itemsLeft uint32
}

func (p *recordingProcessor) HandleBatch(session *models.Session, payload []byte, itemsLeft uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, processedBatch{session: session, payload: payload, itemsLeft: itemsLeft})
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestTracker_ImmediateProcessingWhenOpen(t *testing.T) {
	proc := &recordingProcessor{}
	tracker := NewTracker(proc, zap.NewNop())

	appUUID := models.SystemAppUUID
	tracker.OpenSession(1, models.TagSteps, appUUID, 20)
	tracker.HandleSendDataItems(1, []byte{1, 2, 3}, 0)

	require.Equal(t, 1, proc.count())
	assert.Equal(t, models.TagSteps, proc.batches[0].session.Tag)
	assert.Equal(t, uint16(20), proc.batches[0].session.ItemSize)
	assert.Equal(t, []byte{1, 2, 3}, proc.batches[0].payload)
}

func TestTracker_PendingFlushedInArrivalOrder(t *testing.T) {
	proc := &recordingProcessor{}
	tracker := NewTracker(proc, zap.NewNop())

	// 数据先于 openSession 到达
	tracker.HandleSendDataItems(2, []byte{0x01}, 2)
	tracker.HandleSendDataItems(2, []byte{0x02}, 1)
	tracker.HandleSendDataItems(2, []byte{0x03}, 0)
	require.Equal(t, 0, proc.count())

	tracker.OpenSession(2, models.TagOverlay, models.SystemAppUUID, 10)

	require.Equal(t, 3, proc.count())
	assert.Equal(t, []byte{0x01}, proc.batches[0].payload)
	assert.Equal(t, []byte{0x02}, proc.batches[1].payload)
	assert.Equal(t, []byte{0x03}, proc.batches[2].payload)
	assert.Equal(t, uint32(0), proc.batches[2].itemsLeft)

	// 每个批次都带上会话上下文
	for _, b := range proc.batches {
		assert.Equal(t, models.TagOverlay, b.session.Tag)
	}
}

func TestTracker_PendingFlushedExactlyOnce(t *testing.T) {
	proc := &recordingProcessor{}
	tracker := NewTracker(proc, zap.NewNop())

	tracker.HandleSendDataItems(3, []byte{0xAA}, 0)
	tracker.OpenSession(3, models.TagSteps, models.SystemAppUUID, 20)
	require.Equal(t, 1, proc.count())

	// 再次打开同一 ID 不会重放队列
	tracker.OpenSession(3, models.TagSteps, models.SystemAppUUID, 20)
	assert.Equal(t, 1, proc.count())
}

func TestTracker_CloseWithoutOpenDiscardsPending(t *testing.T) {
	proc := &recordingProcessor{}
	tracker := NewTracker(proc, zap.NewNop())

	tracker.HandleSendDataItems(4, []byte{0x01}, 1)
	tracker.HandleSendDataItems(4, []byte{0x02}, 0)

	tracker.CloseSession(4, models.TagSteps)

	// 关闭后再打开也不会处理已丢弃的数据
	tracker.OpenSession(4, models.TagSteps, models.SystemAppUUID, 20)
	assert.Equal(t, 0, proc.count())
}

func TestTracker_NonHealthTagIgnored(t *testing.T) {
	proc := &recordingProcessor{}
	tracker := NewTracker(proc, zap.NewNop())

	tracker.OpenSession(5, 42, models.SystemAppUUID, 20)
	assert.Equal(t, 0, tracker.OpenSessions())

	// 非健康 tag 的 close 不影响已打开的健康会话
	tracker.OpenSession(5, models.TagSteps, models.SystemAppUUID, 20)
	tracker.CloseSession(5, 42)
	assert.Equal(t, 1, tracker.OpenSessions())
}

func TestTracker_SessionIDReuseOverwritesStale(t *testing.T) {
	proc := &recordingProcessor{}
	tracker := NewTracker(proc, zap.NewNop())

	tracker.OpenSession(6, models.TagSteps, models.SystemAppUUID, 20)
	tracker.CloseSession(6, models.TagSteps)

	// 设备 ID 循环复用：同一数字 ID 作为全新会话重新打开
	otherApp := uuid.MustParse("0f0f0f0f-0f0f-0f0f-0f0f-0f0f0f0f0f0f")
	tracker.OpenSession(6, models.TagSleep, otherApp, 10)
	tracker.HandleSendDataItems(6, []byte{0x01}, 0)

	require.Equal(t, 1, proc.count())
	assert.Equal(t, models.TagSleep, proc.batches[0].session.Tag)
	assert.Equal(t, otherApp, proc.batches[0].session.AppUUID)
}

func TestTracker_PayloadCopiedWhenQueued(t *testing.T) {
	proc := &recordingProcessor{}
	tracker := NewTracker(proc, zap.NewNop())

	payload := []byte{0x10, 0x20}
	tracker.HandleSendDataItems(7, payload, 0)

	// 传输层可能复用缓冲区
	payload[0] = 0xFF

	tracker.OpenSession(7, models.TagSteps, models.SystemAppUUID, 20)
	require.Equal(t, 1, proc.count())
	assert.Equal(t, []byte{0x10, 0x20}, proc.batches[0].payload)
}
