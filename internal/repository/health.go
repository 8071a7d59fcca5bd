package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"wisefido-health/internal/models"
)

// HealthStore 健康数据存储能力接口
//
// 写入必须幂等：重复投递或 pending 队列重复回放不能造成重复计数。
// 区间查询统一为 [start, end) 左闭右开，时间为 epoch 秒。
type HealthStore interface {
	UpsertHealthRecords(ctx context.Context, records []models.HealthRecord) error
	UpsertOverlayRecords(ctx context.Context, records []models.OverlayRecord) error

	// TotalSteps 返回 [start, end) 内的步数总和
	TotalSteps(ctx context.Context, start, end int64) (int, error)
	// OverlaysInRange 返回 StartTime 落在 [start, end) 内且类型匹配的区间记录
	OverlaysInRange(ctx context.Context, start, end int64, types []models.OverlayType) ([]models.OverlayRecord, error)
	// AverageMetric 返回 [start, end) 内心率样本的平均值（无样本时为 0）
	AverageMetric(ctx context.Context, start, end int64) (float64, error)
	// LatestTimestamp 返回全库最新记录的时间戳（无数据时为 0）
	LatestTimestamp(ctx context.Context) (int64, error)
}

// PostgresHealthStore 基于 PostgreSQL 的健康数据仓库
type PostgresHealthStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresHealthStore 创建健康数据仓库
func NewPostgresHealthStore(db *sql.DB, logger *zap.Logger) *PostgresHealthStore {
	return &PostgresHealthStore{
		db:     db,
		logger: logger,
	}
}

// UpsertHealthRecords 批量写入步数记录（以 timestamp 去重）
func (r *PostgresHealthStore) UpsertHealthRecords(ctx context.Context, records []models.HealthRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO health_records (
			timestamp,
			steps,
			active_calories,
			resting_calories,
			distance_cm,
			active_minutes,
			heart_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (timestamp) DO NOTHING
	`

	for _, rec := range records {
		var heartRate sql.NullInt64
		if rec.HeartRate != nil {
			heartRate = sql.NullInt64{Int64: int64(*rec.HeartRate), Valid: true}
		}

		if _, err := tx.ExecContext(ctx, query,
			rec.Timestamp,
			rec.Steps,
			rec.ActiveCalories,
			rec.RestingCalories,
			rec.DistanceCm,
			rec.ActiveMinutes,
			heartRate,
		); err != nil {
			return fmt.Errorf("failed to upsert health record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit health records: %w", err)
	}

	return nil
}

// UpsertOverlayRecords 批量写入区间记录（以 (start_time, overlay_type) 去重）
func (r *PostgresHealthStore) UpsertOverlayRecords(ctx context.Context, records []models.OverlayRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO overlay_records (
			start_time,
			duration_sec,
			overlay_type
		) VALUES ($1, $2, $3)
		ON CONFLICT (start_time, overlay_type) DO NOTHING
	`

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			rec.StartTime,
			rec.DurationSec,
			int(rec.Type),
		); err != nil {
			return fmt.Errorf("failed to upsert overlay record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit overlay records: %w", err)
	}

	return nil
}

// TotalSteps 统计 [start, end) 内的步数总和
func (r *PostgresHealthStore) TotalSteps(ctx context.Context, start, end int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(steps), 0)
		FROM health_records
		WHERE timestamp >= $1 AND timestamp < $2
	`

	var total int
	if err := r.db.QueryRowContext(ctx, query, start, end).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to query total steps: %w", err)
	}

	return total, nil
}

// OverlaysInRange 查询 [start, end) 内指定类型的区间记录，按开始时间升序
func (r *PostgresHealthStore) OverlaysInRange(ctx context.Context, start, end int64, types []models.OverlayType) ([]models.OverlayRecord, error) {
	typeCodes := make([]int64, 0, len(types))
	for _, t := range types {
		typeCodes = append(typeCodes, int64(t))
	}

	query := `
		SELECT start_time, duration_sec, overlay_type
		FROM overlay_records
		WHERE start_time >= $1 AND start_time < $2
		  AND overlay_type = ANY($3)
		ORDER BY start_time ASC
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, pq.Array(typeCodes))
	if err != nil {
		return nil, fmt.Errorf("failed to query overlays: %w", err)
	}
	defer rows.Close()

	var results []models.OverlayRecord
	for rows.Next() {
		var rec models.OverlayRecord
		var overlayType int
		if err := rows.Scan(&rec.StartTime, &rec.DurationSec, &overlayType); err != nil {
			return nil, fmt.Errorf("failed to scan overlay row: %w", err)
		}
		rec.Type = models.OverlayType(overlayType)
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overlay rows: %w", err)
	}

	return results, nil
}

// AverageMetric 计算 [start, end) 内心率样本的平均值
//
// 步数与心率共用 health_records 表，周/月心率查询复用该访问器。
func (r *PostgresHealthStore) AverageMetric(ctx context.Context, start, end int64) (float64, error) {
	query := `
		SELECT COALESCE(AVG(heart_rate), 0)
		FROM health_records
		WHERE timestamp >= $1 AND timestamp < $2
		  AND heart_rate IS NOT NULL
	`

	var avg float64
	if err := r.db.QueryRowContext(ctx, query, start, end).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to query average metric: %w", err)
	}

	return avg, nil
}

// LatestTimestamp 返回步数与区间记录中最新的时间戳
func (r *PostgresHealthStore) LatestTimestamp(ctx context.Context) (int64, error) {
	query := `
		SELECT GREATEST(
			COALESCE((SELECT MAX(timestamp) FROM health_records), 0),
			COALESCE((SELECT MAX(start_time) FROM overlay_records), 0)
		)
	`

	var latest int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&latest); err != nil {
		return 0, fmt.Errorf("failed to query latest timestamp: %w", err)
	}

	return latest, nil
}
