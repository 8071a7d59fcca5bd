// export-stats 导出 30 天健康统计到 Excel（运维诊断工具）
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xuri/excelize/v2"
	"wisefido-health/internal/common/database"
	"wisefido-health/internal/common/logger"
	"wisefido-health/internal/config"
	"wisefido-health/internal/query"
	"wisefido-health/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, "console", "export-stats")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	store := repository.NewPostgresHealthStore(db, zapLogger)
	engine := query.NewEngine(store, loc, zapLogger)

	ctx := context.Background()
	now := time.Now().In(loc)

	summary, err := engine.Summary(ctx, now)
	if err != nil {
		log.Fatalf("Failed to compute summary: %v", err)
	}
	weeklySteps, err := engine.WeeklySteps(ctx, now)
	if err != nil {
		log.Fatalf("Failed to compute weekly steps: %v", err)
	}
	weeklySleep, err := engine.WeeklySleep(ctx, now)
	if err != nil {
		log.Fatalf("Failed to compute weekly sleep: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// Sheet 1: 30 天总览
	sheet := "Summary"
	f.SetSheetName("Sheet1", sheet)
	rows := [][]interface{}{
		{"Generated At", summary.GeneratedAt.Format(time.RFC3339)},
		{"Window Start", summary.WindowStart.Format("2006-01-02")},
		{"Total Steps (30d)", summary.TotalSteps},
		{"Average Steps", fmt.Sprintf("%.1f", summary.AverageSteps)},
		{"Total Sleep (h)", float64(summary.TotalSleepSec) / 3600},
		{"Average Sleep (h)", float64(summary.AverageSleepSec) / 3600},
		{"Today Steps", summary.TodaySteps},
		{"Days of Data", summary.DaysOfData},
		{"Latest Timestamp", summary.LatestTimestamp},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			log.Fatalf("Failed to write summary row: %v", err)
		}
	}

	// Sheet 2: 本周逐日
	weekSheet := "Week"
	if _, err := f.NewSheet(weekSheet); err != nil {
		log.Fatalf("Failed to create week sheet: %v", err)
	}
	header := []interface{}{"Date", "Steps", "Light Sleep (h)", "Deep Sleep (h)"}
	if err := f.SetSheetRow(weekSheet, "A1", &header); err != nil {
		log.Fatalf("Failed to write header: %v", err)
	}
	for i, day := range weeklySteps.Days {
		lightH, deepH := 0.0, 0.0
		if i < len(weeklySleep.Days) {
			lightH = float64(weeklySleep.Days[i].LightSec) / 3600
			deepH = float64(weeklySleep.Days[i].DeepSec) / 3600
		}
		row := []interface{}{
			day.Date.Format("2006-01-02"),
			day.Steps,
			lightH,
			deepH,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(weekSheet, cell, &row); err != nil {
			log.Fatalf("Failed to write week row: %v", err)
		}
	}

	output := fmt.Sprintf("health-stats-%s.xlsx", now.Format("20060102"))
	if err := f.SaveAs(output); err != nil {
		log.Fatalf("Failed to save workbook: %v", err)
	}

	fmt.Printf("Exported %s\n", output)
}
