// Package notify 提供"健康数据已更新"的进程内广播
//
// 广播无负载、无回放缓冲：通知发出时不在监听的订阅者会错过该事件，
// 这是设计行为。需要最新数据的调用方应显式等待下一次通知（带超时）
// 或直接重新查询，而不是假设通知一定可达。
package notify

import (
	"context"
	"sync"
	"time"
)

// Broadcaster 零负载事件广播器
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// NewBroadcaster 创建广播器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan struct{}),
	}
}

// Subscribe 订阅更新事件
//
// 返回接收通道与取消函数。通道容量为 1：订阅者处理期间到达的
// 多次通知合并为一次，不阻塞发送方。
func (b *Broadcaster) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan struct{}, 1)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}

	return ch, cancel
}

// Notify 向当前所有订阅者发送一次更新事件（非阻塞，不保证送达）
func (b *Broadcaster) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
			// 订阅者尚未消费上一次通知，合并
		}
	}
}

// AwaitUpdate 等待下一次更新事件，最多等待 timeout
//
// 返回 true 表示等到了更新；超时或 ctx 取消返回 false，
// 调用方应按"没有发生更新"处理而不是无限阻塞。
func (b *Broadcaster) AwaitUpdate(ctx context.Context, timeout time.Duration) bool {
	ch, cancel := b.Subscribe()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
