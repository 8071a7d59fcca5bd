package query

import (
	"context"
	"fmt"
	"time"
)

// rollingWindowDays 滚动统计窗口（含今天的最近 30 个日历日）
const rollingWindowDays = 30

// SummaryResult 30 天统计总览（诊断用途）
type SummaryResult struct {
	GeneratedAt       time.Time `json:"generated_at"`
	WindowStart       time.Time `json:"window_start"`
	TotalSteps        int       `json:"total_steps"`
	AverageSteps      float64   `json:"average_steps"`
	TotalSleepSec     int       `json:"total_sleep_sec"`
	AverageSleepSec   int       `json:"average_sleep_sec"`
	TodaySteps        int       `json:"today_steps"`
	DaysWithStepData  int       `json:"days_with_step_data"`
	DaysWithSleepData int       `json:"days_with_sleep_data"`
	DaysOfData        int       `json:"days_of_data"`
	LatestTimestamp   int64     `json:"latest_timestamp"`
}

// Summary 计算 30 天统计总览（纯读取）
//
// 窗口为含 now 当日的最近 30 个日历日；"今天"为 [当日零点, 次日零点)；
// 平均值除以有数据的天数；DaysOfData 取步数/睡眠两者的较大值。
func (e *Engine) Summary(ctx context.Context, now time.Time) (*SummaryResult, error) {
	today := e.startOfDay(now)
	windowStart := today.AddDate(0, 0, -(rollingWindowDays - 1))
	tomorrow := today.AddDate(0, 0, 1)

	result := &SummaryResult{
		GeneratedAt: now,
		WindowStart: windowStart,
	}

	for day := windowStart; day.Before(tomorrow); day = day.AddDate(0, 0, 1) {
		steps, err := e.store.TotalSteps(ctx, day.Unix(), day.AddDate(0, 0, 1).Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to query daily steps: %w", err)
		}
		result.TotalSteps += steps
		if steps > 0 {
			result.DaysWithStepData++
		}

		light, deep, err := e.daySleepTotals(ctx, day)
		if err != nil {
			return nil, err
		}
		if light+deep > 0 {
			result.TotalSleepSec += light + deep
			result.DaysWithSleepData++
		}
	}

	todaySteps, err := e.store.TotalSteps(ctx, today.Unix(), tomorrow.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query today steps: %w", err)
	}
	result.TodaySteps = todaySteps

	latest, err := e.store.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest timestamp: %w", err)
	}
	result.LatestTimestamp = latest

	if result.DaysWithStepData > 0 {
		result.AverageSteps = float64(result.TotalSteps) / float64(result.DaysWithStepData)
	}
	if result.DaysWithSleepData > 0 {
		result.AverageSleepSec = result.TotalSleepSec / result.DaysWithSleepData
	}

	result.DaysOfData = result.DaysWithStepData
	if result.DaysWithSleepData > result.DaysOfData {
		result.DaysOfData = result.DaysWithSleepData
	}

	return result, nil
}
