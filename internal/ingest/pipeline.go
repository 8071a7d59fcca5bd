// Package ingest 消费已解析会话的数据块：解码、幂等入库、广播更新，
// 并按"每个日历日最多一次"的节奏重算 30 天滚动统计。
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"wisefido-health/internal/codec"
	"wisefido-health/internal/models"
	"wisefido-health/internal/notify"
	"wisefido-health/internal/query"
	"wisefido-health/internal/repository"
)

const (
	// 滚动统计节流游标与快照的 Redis 键
	statsCursorKey   = "health:stats:cursor"
	statsSnapshotKey = "health:stats:rolling"
)

// rollingStatsCursor 滚动统计节流状态
//
// 只被 Pipeline 覆盖写，从不显式清除。LastUpdateDate 与"今天"
// （配置时区）相同时跳过重算，保证每日历日最多重算一次。
type rollingStatsCursor struct {
	LastUpdateDate      string `json:"last_update_date"` // "2006-01-02"
	LastUpdateTimestamp int64  `json:"last_update_timestamp"`
}

// Pipeline 数据摄取管道
type Pipeline struct {
	store       repository.HealthStore
	kv          KVStore
	engine      *query.Engine
	broadcaster *notify.Broadcaster
	loc         *time.Location
	logger      *zap.Logger

	wg sync.WaitGroup
}

// NewPipeline 创建摄取管道
func NewPipeline(
	store repository.HealthStore,
	kv KVStore,
	engine *query.Engine,
	broadcaster *notify.Broadcaster,
	loc *time.Location,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:       store,
		kv:          kv,
		engine:      engine,
		broadcaster: broadcaster,
		loc:         loc,
		logger:      logger,
	}
}

// HandleBatch 异步处理一个数据块
//
// 每个完成的块作为独立任务执行，不阻塞路由线程；
// 单个块的失败只记录日志，不影响会话的后续块。
func (p *Pipeline) HandleBatch(session *models.Session, payload []byte, itemsLeft uint32) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.ProcessBatch(context.Background(), session, payload, itemsLeft); err != nil {
			p.logger.Error("Failed to process health batch",
				zap.Uint32("tag", session.Tag),
				zap.Int("payload_size", len(payload)),
				zap.Uint32("items_left", itemsLeft),
				zap.Error(err),
			)
		}
	}()
}

// Wait 等待所有在途批次处理完成（用于优雅关闭）
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// ProcessBatch 同步处理一个数据块
//
// 非系统应用的健康数据只识别不解码（直接跳过，不算错误）。
func (p *Pipeline) ProcessBatch(ctx context.Context, session *models.Session, payload []byte, itemsLeft uint32) error {
	if session.AppUUID != models.SystemAppUUID {
		p.logger.Debug("Skipping health data from non-system app",
			zap.String("app_uuid", session.AppUUID.String()),
			zap.Uint32("tag", session.Tag),
		)
		return nil
	}

	switch session.Tag {
	case models.TagSteps:
		if err := p.processSteps(ctx, session, payload); err != nil {
			return err
		}
	case models.TagSleep, models.TagOverlay:
		if err := p.processOverlay(ctx, session, payload); err != nil {
			return err
		}
	case models.TagHeartRate:
		// 保留通道：心率内嵌在步数记录中，此处不产生独立记录
	default:
		return nil
	}

	// 批次的最后一个块触发滚动统计重算（按日历日节流）
	if itemsLeft == 0 {
		if err := p.maybeRecomputeRollingStats(ctx); err != nil {
			p.logger.Error("Failed to recompute rolling stats", zap.Error(err))
		}
	}

	return nil
}

// processSteps 处理步数数据块
func (p *Pipeline) processSteps(ctx context.Context, session *models.Session, payload []byte) error {
	records := codec.ParseSteps(payload, session.ItemSize)
	if len(records) == 0 {
		return nil
	}

	totalSteps := 0
	for _, rec := range records {
		totalSteps += rec.Steps
	}
	p.logger.Info("Decoded steps batch",
		zap.String("summary", fmt.Sprintf("%d records, %d steps", len(records), totalSteps)),
	)

	if err := p.store.UpsertHealthRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to upsert health records: %w", err)
	}

	p.broadcaster.Notify()
	return nil
}

// processOverlay 处理睡眠/区间数据块（睡眠使用 overlay 布局编码）
func (p *Pipeline) processOverlay(ctx context.Context, session *models.Session, payload []byte) error {
	records := codec.ParseOverlay(payload, session.ItemSize)
	if len(records) == 0 {
		return nil
	}

	p.logger.Info("Decoded overlay batch",
		zap.Int("records", len(records)),
	)

	if err := p.store.UpsertOverlayRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to upsert overlay records: %w", err)
	}

	p.broadcaster.Notify()
	return nil
}

// maybeRecomputeRollingStats 按日历日节流的 30 天统计重算
//
// 游标存于 Redis；今天已重算过则跳过，保证无论到达多少批次，
// 每日历日最多重算一次。
func (p *Pipeline) maybeRecomputeRollingStats(ctx context.Context) error {
	now := time.Now().In(p.loc)
	today := now.Format("2006-01-02")

	var cursor rollingStatsCursor
	if val, err := p.kv.Get(ctx, statsCursorKey); err == nil {
		if err := json.Unmarshal([]byte(val), &cursor); err != nil {
			p.logger.Warn("Invalid rolling stats cursor, recomputing", zap.Error(err))
		}
	} else if err != ErrCacheMiss {
		return fmt.Errorf("failed to read stats cursor: %w", err)
	}

	if cursor.LastUpdateDate == today {
		p.logger.Debug("Rolling stats already updated today", zap.String("date", today))
		return nil
	}

	summary, err := p.engine.Summary(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to compute rolling stats: %w", err)
	}

	snapshotJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal stats snapshot: %w", err)
	}
	if err := p.kv.Set(ctx, statsSnapshotKey, string(snapshotJSON), 0); err != nil {
		return fmt.Errorf("failed to store stats snapshot: %w", err)
	}

	cursor = rollingStatsCursor{
		LastUpdateDate:      today,
		LastUpdateTimestamp: now.Unix(),
	}
	cursorJSON, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to marshal stats cursor: %w", err)
	}
	if err := p.kv.Set(ctx, statsCursorKey, string(cursorJSON), 0); err != nil {
		return fmt.Errorf("failed to store stats cursor: %w", err)
	}

	p.logger.Info("Rolling stats recomputed",
		zap.String("date", today),
		zap.Int("total_steps_30d", summary.TotalSteps),
		zap.Int("days_of_data", summary.DaysOfData),
	)

	return nil
}
