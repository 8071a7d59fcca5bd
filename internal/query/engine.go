// Package query 提供按日/周/月分桶的健康统计查询
//
// 所有查询都是对存储的纯读取，带时区感知的日历分桶：
// - 周以参考日期当前或之前最近的周日为锚点
// - 睡眠按跨午夜窗口 [前一日 18:00, 当日 14:00) 检索
// - 月按与目标月相交的周日锚定日历周切分（两端允许不完整周）
package query

import (
	"time"

	"go.uber.org/zap"
	"wisefido-health/internal/repository"
)

// Engine 健康统计查询引擎
type Engine struct {
	store  repository.HealthStore
	loc    *time.Location
	logger *zap.Logger

	now func() time.Time // 可在测试中替换
}

// NewEngine 创建查询引擎
func NewEngine(store repository.HealthStore, loc *time.Location, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// startOfDay 返回 t 所在日历日的零点（引擎时区）
func (e *Engine) startOfDay(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// previousSunday 返回 day 当日或之前最近的周日零点（day 已是周日则返回其本身）
func (e *Engine) previousSunday(day time.Time) time.Time {
	day = e.startOfDay(day)
	offset := int(day.Weekday()) // Sunday == 0
	return day.AddDate(0, 0, -offset)
}

// sleepWindow 返回 day 对应的跨夜睡眠检索窗口 [day-1 18:00, day 14:00)
func (e *Engine) sleepWindow(day time.Time) (time.Time, time.Time) {
	day = e.startOfDay(day)
	start := day.AddDate(0, 0, -1).Add(18 * time.Hour)
	end := day.Add(14 * time.Hour)
	return start, end
}
