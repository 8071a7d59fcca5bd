package query

import (
	"context"
	"fmt"
	"time"

	"wisefido-health/internal/models"
)

// SleepSegment 睡眠图表展示片段
//
// StartHour 为图表坐标：窗口起点（前一日 18:00）归一化为 18，
// 之后按小时线性递增（例如次日 02:00 为 26）。
type SleepSegment struct {
	Start       time.Time          `json:"start"`
	DurationSec int                `json:"duration_sec"`
	Type        models.OverlayType `json:"type"`
	StartHour   float64            `json:"start_hour"`
}

// DailySleepResult 单日睡眠
//
// 头条数值只统计 Sleep/DeepSleep；小睡不计入总时长与就寝/起床边界，
// 但仍作为展示片段返回。HasData 为 false 表示窗口内无睡眠记录
// （"无数据"而非"睡了 0 秒"）。
type DailySleepResult struct {
	Date          time.Time      `json:"date"`
	HasData       bool           `json:"has_data"`
	TotalSleepSec int            `json:"total_sleep_sec"`
	DeepSleepSec  int            `json:"deep_sleep_sec"`
	Bedtime       time.Time      `json:"bedtime"`
	WakeTime      time.Time      `json:"wake_time"`
	Segments      []SleepSegment `json:"segments"`
}

// SleepDayValue 周/月视图中的单日睡眠（浅睡/深睡秒数）
type SleepDayValue struct {
	Date     time.Time `json:"date"`
	LightSec int       `json:"light_sec"`
	DeepSec  int       `json:"deep_sec"`
}

// WeeklySleepResult 周睡眠，平均值固定除以 7
type WeeklySleepResult struct {
	WeekStart   time.Time       `json:"week_start"`
	Days        []SleepDayValue `json:"days"`
	AvgLightSec int             `json:"avg_light_sec"`
	AvgDeepSec  int             `json:"avg_deep_sec"`
}

// MonthlySleepResult 月睡眠，平均值除以当月日历天数
// （注意：与月步数"除以有数据天数"不同，沿用既有行为）
type MonthlySleepResult struct {
	Month       time.Time       `json:"month"`
	Days        []SleepDayValue `json:"days"`
	AvgLightSec int             `json:"avg_light_sec"`
	AvgDeepSec  int             `json:"avg_deep_sec"`
}

// DailySleep 查询单日睡眠
//
// 检索窗口为 [前一日 18:00, 当日 14:00)，按记录开始时间过滤：
// 17:59 开始的记录不属于当日，13:59:59 开始的属于当日。
func (e *Engine) DailySleep(ctx context.Context, date time.Time) (*DailySleepResult, error) {
	day := e.startOfDay(date)
	winStart, winEnd := e.sleepWindow(day)

	// 展示片段包含小睡
	overlays, err := e.store.OverlaysInRange(ctx, winStart.Unix(), winEnd.Unix(),
		[]models.OverlayType{
			models.OverlayTypeSleep,
			models.OverlayTypeDeepSleep,
			models.OverlayTypeNap,
			models.OverlayTypeDeepNap,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to query sleep overlays: %w", err)
	}

	result := &DailySleepResult{Date: day}

	var bedtime, wakeTime int64
	for _, o := range overlays {
		start := time.Unix(o.StartTime, 0).In(e.loc)
		result.Segments = append(result.Segments, SleepSegment{
			Start:       start,
			DurationSec: o.DurationSec,
			Type:        o.Type,
			StartHour:   18 + start.Sub(winStart).Hours(),
		})

		// 小睡不计入头条数值
		if o.Type != models.OverlayTypeSleep && o.Type != models.OverlayTypeDeepSleep {
			continue
		}

		result.HasData = true
		result.TotalSleepSec += o.DurationSec
		if o.Type == models.OverlayTypeDeepSleep {
			result.DeepSleepSec += o.DurationSec
		}
		if bedtime == 0 || o.StartTime < bedtime {
			bedtime = o.StartTime
		}
		if end := o.EndTime(); end > wakeTime {
			wakeTime = end
		}
	}

	if result.HasData {
		result.Bedtime = time.Unix(bedtime, 0).In(e.loc)
		result.WakeTime = time.Unix(wakeTime, 0).In(e.loc)
	}

	return result, nil
}

// daySleepTotals 返回 day 窗口内的浅睡/深睡秒数
func (e *Engine) daySleepTotals(ctx context.Context, day time.Time) (lightSec, deepSec int, err error) {
	winStart, winEnd := e.sleepWindow(day)
	overlays, err := e.store.OverlaysInRange(ctx, winStart.Unix(), winEnd.Unix(),
		[]models.OverlayType{models.OverlayTypeSleep, models.OverlayTypeDeepSleep})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query sleep overlays: %w", err)
	}

	for _, o := range overlays {
		if o.Type == models.OverlayTypeDeepSleep {
			deepSec += o.DurationSec
		} else {
			lightSec += o.DurationSec
		}
	}
	return lightSec, deepSec, nil
}

// WeeklySleep 查询周睡眠
//
// 对 7 天逐日应用跨夜窗口；整周无数据时返回空序列而不是 7 个零。
func (e *Engine) WeeklySleep(ctx context.Context, ref time.Time) (*WeeklySleepResult, error) {
	weekStart := e.previousSunday(ref)
	result := &WeeklySleepResult{WeekStart: weekStart}

	var days []SleepDayValue
	totalLight, totalDeep := 0, 0
	for i := 0; i < 7; i++ {
		day := weekStart.AddDate(0, 0, i)
		light, deep, err := e.daySleepTotals(ctx, day)
		if err != nil {
			return nil, err
		}
		days = append(days, SleepDayValue{Date: day, LightSec: light, DeepSec: deep})
		totalLight += light
		totalDeep += deep
	}

	if totalLight+totalDeep == 0 {
		return result, nil
	}

	result.Days = days
	result.AvgLightSec = totalLight / 7
	result.AvgDeepSec = totalDeep / 7
	return result, nil
}

// MonthlySleep 查询月睡眠
//
// 逐日遍历整月；平均值除以当月日历天数。整月无数据返回空序列。
func (e *Engine) MonthlySleep(ctx context.Context, ref time.Time) (*MonthlySleepResult, error) {
	refDay := e.startOfDay(ref)
	monthStart := time.Date(refDay.Year(), refDay.Month(), 1, 0, 0, 0, 0, e.loc)
	monthEnd := monthStart.AddDate(0, 1, 0)
	daysInMonth := int(monthEnd.Sub(monthStart).Hours() / 24)

	result := &MonthlySleepResult{Month: monthStart}

	var days []SleepDayValue
	totalLight, totalDeep := 0, 0
	for day := monthStart; day.Before(monthEnd); day = day.AddDate(0, 0, 1) {
		light, deep, err := e.daySleepTotals(ctx, day)
		if err != nil {
			return nil, err
		}
		days = append(days, SleepDayValue{Date: day, LightSec: light, DeepSec: deep})
		totalLight += light
		totalDeep += deep
	}

	if totalLight+totalDeep == 0 {
		return result, nil
	}

	result.Days = days
	result.AvgLightSec = totalLight / daysInMonth
	result.AvgDeepSec = totalDeep / daysInMonth
	return result, nil
}
