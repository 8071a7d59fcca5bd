package query

import (
	"context"
	"fmt"
	"time"

	"wisefido-health/internal/models"
)

// StepSample 当日步数采样点（Steps 为零点到采样时刻的累计值）
type StepSample struct {
	Time  time.Time `json:"time"`
	Steps int       `json:"steps"`
}

// DailyStepsResult 单日步数
type DailyStepsResult struct {
	Date       time.Time    `json:"date"`
	WakeTime   time.Time    `json:"wake_time"`
	Samples    []StepSample `json:"samples"`
	TotalSteps int          `json:"total_steps"`
}

// StepsDayValue 周/月视图中的单日步数
type StepsDayValue struct {
	Date  time.Time `json:"date"`
	Steps int       `json:"steps"`
}

// WeeklyStepsResult 周步数（7 个日桶，周日锚定）
type WeeklyStepsResult struct {
	WeekStart    time.Time       `json:"week_start"`
	Days         []StepsDayValue `json:"days"`
	TotalSteps   int             `json:"total_steps"`
	DaysWithData int             `json:"days_with_data"`
	AverageSteps float64         `json:"average_steps"`
}

// StepsWeekValue 月视图中的单周步数
type StepsWeekValue struct {
	WeekStart    time.Time `json:"week_start"`
	Value        float64   `json:"value"` // weekTotal / daysWithDataInWeek
	DaysWithData int       `json:"days_with_data"`
}

// MonthlyStepsResult 月步数（与目标月相交的日历周，两端可为不完整周）
type MonthlyStepsResult struct {
	Month        time.Time        `json:"month"`
	Weeks        []StepsWeekValue `json:"weeks"`
	TotalSteps   int              `json:"total_steps"`
	DaysWithData int              `json:"days_with_data"`
	AverageSteps float64          `json:"average_steps"`
}

// DailySteps 查询单日步数曲线与总量
//
// 起床时刻取跨夜窗口内最晚的睡眠结束时间，窗口无睡眠记录则回退 06:00；
// 起床时刻夹紧到 [当日零点, now] 并按就近取整到整点（>=30 分钟进位）。
// 从起床时刻起每小时采一个累计样本，另在 now 处追加一个样本。
// 当日总量为 [零点, 次日零点) 的步数和。
func (e *Engine) DailySteps(ctx context.Context, date time.Time) (*DailyStepsResult, error) {
	day := e.startOfDay(date)
	now := e.now().In(e.loc)

	wake, err := e.wakeTime(ctx, day)
	if err != nil {
		return nil, err
	}

	// 夹紧到 [当日零点, now]
	if wake.Before(day) {
		wake = day
	}
	if wake.After(now) {
		wake = now
	}

	// 就近取整到整点
	rounded := time.Date(wake.Year(), wake.Month(), wake.Day(), wake.Hour(), 0, 0, 0, e.loc)
	if wake.Minute() >= 30 {
		rounded = rounded.Add(time.Hour)
	}
	if rounded.After(now) {
		rounded = now
	}
	wake = rounded

	var samples []StepSample
	for t := wake; t.Before(now); t = t.Add(time.Hour) {
		steps, err := e.store.TotalSteps(ctx, day.Unix(), t.Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to query step sample: %w", err)
		}
		samples = append(samples, StepSample{Time: t, Steps: steps})
	}

	// 额外一个落在 now 上的样本
	nowSteps, err := e.store.TotalSteps(ctx, day.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query step sample: %w", err)
	}
	samples = append(samples, StepSample{Time: now, Steps: nowSteps})

	total, err := e.store.TotalSteps(ctx, day.Unix(), day.AddDate(0, 0, 1).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query day total: %w", err)
	}

	return &DailyStepsResult{
		Date:       day,
		WakeTime:   wake,
		Samples:    samples,
		TotalSteps: total,
	}, nil
}

// wakeTime 在跨夜窗口内找最晚的睡眠结束时间，无则回退当日 06:00
func (e *Engine) wakeTime(ctx context.Context, day time.Time) (time.Time, error) {
	winStart, winEnd := e.sleepWindow(day)
	overlays, err := e.store.OverlaysInRange(ctx, winStart.Unix(), winEnd.Unix(),
		[]models.OverlayType{models.OverlayTypeSleep, models.OverlayTypeDeepSleep})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query sleep overlays: %w", err)
	}

	if len(overlays) == 0 {
		return day.Add(6 * time.Hour), nil
	}

	var latestEnd int64
	for _, o := range overlays {
		if end := o.EndTime(); end > latestEnd {
			latestEnd = end
		}
	}
	return time.Unix(latestEnd, 0).In(e.loc), nil
}

// WeeklySteps 查询周步数
//
// 周锚定在参考日期当日或之前最近的周日，7 个 [start, end) 日桶。
// 平均值除以有数据的天数（当日总量 > 0），而不是固定除以 7。
func (e *Engine) WeeklySteps(ctx context.Context, ref time.Time) (*WeeklyStepsResult, error) {
	weekStart := e.previousSunday(ref)

	result := &WeeklyStepsResult{
		WeekStart: weekStart,
		Days:      make([]StepsDayValue, 0, 7),
	}

	for i := 0; i < 7; i++ {
		dayStart := weekStart.AddDate(0, 0, i)
		dayEnd := weekStart.AddDate(0, 0, i+1)

		steps, err := e.store.TotalSteps(ctx, dayStart.Unix(), dayEnd.Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to query daily steps: %w", err)
		}

		result.Days = append(result.Days, StepsDayValue{Date: dayStart, Steps: steps})
		result.TotalSteps += steps
		if steps > 0 {
			result.DaysWithData++
		}
	}

	if result.DaysWithData > 0 {
		result.AverageSteps = float64(result.TotalSteps) / float64(result.DaysWithData)
	}

	return result, nil
}

// MonthlySteps 查询月步数
//
// 周为与目标月相交的周日锚定日历周，两端的不完整周只计入月内天数。
// 单周展示值为 weekTotal / daysWithDataInWeek，无数据的周不进入输出。
// 月平均为 totalAcrossIncludedWeeks / totalDaysWithData
// （注意：与周视图不同，这里的分母是有数据的天数，沿用既有行为）。
func (e *Engine) MonthlySteps(ctx context.Context, ref time.Time) (*MonthlyStepsResult, error) {
	refDay := e.startOfDay(ref)
	monthStart := time.Date(refDay.Year(), refDay.Month(), 1, 0, 0, 0, 0, e.loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	result := &MonthlyStepsResult{Month: monthStart}

	for weekStart := e.previousSunday(monthStart); weekStart.Before(monthEnd); weekStart = weekStart.AddDate(0, 0, 7) {
		// 夹紧到月内
		from := weekStart
		if from.Before(monthStart) {
			from = monthStart
		}
		to := weekStart.AddDate(0, 0, 7)
		if to.After(monthEnd) {
			to = monthEnd
		}

		weekTotal := 0
		daysWithData := 0
		for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
			steps, err := e.store.TotalSteps(ctx, day.Unix(), day.AddDate(0, 0, 1).Unix())
			if err != nil {
				return nil, fmt.Errorf("failed to query daily steps: %w", err)
			}
			weekTotal += steps
			if steps > 0 {
				daysWithData++
			}
		}

		// 整周无数据则不输出该周
		if daysWithData == 0 {
			continue
		}

		result.Weeks = append(result.Weeks, StepsWeekValue{
			WeekStart:    weekStart,
			Value:        float64(weekTotal) / float64(daysWithData),
			DaysWithData: daysWithData,
		})
		result.TotalSteps += weekTotal
		result.DaysWithData += daysWithData
	}

	if result.DaysWithData > 0 {
		result.AverageSteps = float64(result.TotalSteps) / float64(result.DaysWithData)
	}

	return result, nil
}
