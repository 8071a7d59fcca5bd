package query

import (
	"context"
	"fmt"
	"time"
)

// HeartRateDayValue 周/月视图中的单日平均心率
type HeartRateDayValue struct {
	Date    time.Time `json:"date"`
	Average float64   `json:"average"`
}

// WeeklyHeartRateResult 周心率，平均只计有数据的天（日均值 > 0）
type WeeklyHeartRateResult struct {
	WeekStart    time.Time           `json:"week_start"`
	Days         []HeartRateDayValue `json:"days"`
	DaysWithData int                 `json:"days_with_data"`
	Average      float64             `json:"average"`
}

// HeartRateWeekValue 月视图中的单周平均心率
type HeartRateWeekValue struct {
	WeekStart    time.Time `json:"week_start"`
	Value        float64   `json:"value"`
	DaysWithData int       `json:"days_with_data"`
}

// MonthlyHeartRateResult 月心率（周日锚定日历周，同月步数切分）
type MonthlyHeartRateResult struct {
	Month        time.Time            `json:"month"`
	Weeks        []HeartRateWeekValue `json:"weeks"`
	DaysWithData int                  `json:"days_with_data"`
	Average      float64              `json:"average"`
}

// WeeklyHeartRate 查询周平均心率
//
// 复用按区间求平均的存储访问器逐日取日均值，
// 周平均只对日均值 > 0 的天求均。
func (e *Engine) WeeklyHeartRate(ctx context.Context, ref time.Time) (*WeeklyHeartRateResult, error) {
	weekStart := e.previousSunday(ref)

	result := &WeeklyHeartRateResult{
		WeekStart: weekStart,
		Days:      make([]HeartRateDayValue, 0, 7),
	}

	sum := 0.0
	for i := 0; i < 7; i++ {
		dayStart := weekStart.AddDate(0, 0, i)
		dayEnd := weekStart.AddDate(0, 0, i+1)

		avg, err := e.store.AverageMetric(ctx, dayStart.Unix(), dayEnd.Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to query daily heart rate: %w", err)
		}

		result.Days = append(result.Days, HeartRateDayValue{Date: dayStart, Average: avg})
		if avg > 0 {
			result.DaysWithData++
			sum += avg
		}
	}

	if result.DaysWithData > 0 {
		result.Average = sum / float64(result.DaysWithData)
	}

	return result, nil
}

// MonthlyHeartRate 查询月平均心率
//
// 周切分与月步数一致（周日锚定、夹紧到月内、无数据的周不输出）；
// 月平均 = 所有日均值之和 / 有数据的天数。
func (e *Engine) MonthlyHeartRate(ctx context.Context, ref time.Time) (*MonthlyHeartRateResult, error) {
	refDay := e.startOfDay(ref)
	monthStart := time.Date(refDay.Year(), refDay.Month(), 1, 0, 0, 0, 0, e.loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	result := &MonthlyHeartRateResult{Month: monthStart}

	totalSum := 0.0
	for weekStart := e.previousSunday(monthStart); weekStart.Before(monthEnd); weekStart = weekStart.AddDate(0, 0, 7) {
		from := weekStart
		if from.Before(monthStart) {
			from = monthStart
		}
		to := weekStart.AddDate(0, 0, 7)
		if to.After(monthEnd) {
			to = monthEnd
		}

		weekSum := 0.0
		daysWithData := 0
		for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
			avg, err := e.store.AverageMetric(ctx, day.Unix(), day.AddDate(0, 0, 1).Unix())
			if err != nil {
				return nil, fmt.Errorf("failed to query daily heart rate: %w", err)
			}
			if avg > 0 {
				weekSum += avg
				daysWithData++
			}
		}

		if daysWithData == 0 {
			continue
		}

		result.Weeks = append(result.Weeks, HeartRateWeekValue{
			WeekStart:    weekStart,
			Value:        weekSum / float64(daysWithData),
			DaysWithData: daysWithData,
		})
		totalSum += weekSum
		result.DaysWithData += daysWithData
	}

	if result.DaysWithData > 0 {
		result.Average = totalSum / float64(result.DaysWithData)
	}

	return result, nil
}
