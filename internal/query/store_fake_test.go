package query

import (
	"context"
	"sort"

	"wisefido-health/internal/models"
)

// fakeStore 内存实现的 HealthStore（测试用）
type fakeStore struct {
	steps     map[int64]int // timestamp -> steps
	heartRate map[int64]int // timestamp -> heart rate
	overlays  []models.OverlayRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		steps:     make(map[int64]int),
		heartRate: make(map[int64]int),
	}
}

func (s *fakeStore) UpsertHealthRecords(ctx context.Context, records []models.HealthRecord) error {
	for _, rec := range records {
		if _, ok := s.steps[rec.Timestamp]; ok {
			continue
		}
		s.steps[rec.Timestamp] = rec.Steps
		if rec.HeartRate != nil {
			s.heartRate[rec.Timestamp] = *rec.HeartRate
		}
	}
	return nil
}

func (s *fakeStore) UpsertOverlayRecords(ctx context.Context, records []models.OverlayRecord) error {
	for _, rec := range records {
		dup := false
		for _, existing := range s.overlays {
			if existing.StartTime == rec.StartTime && existing.Type == rec.Type {
				dup = true
				break
			}
		}
		if !dup {
			s.overlays = append(s.overlays, rec)
		}
	}
	return nil
}

func (s *fakeStore) TotalSteps(ctx context.Context, start, end int64) (int, error) {
	total := 0
	for ts, steps := range s.steps {
		if ts >= start && ts < end {
			total += steps
		}
	}
	return total, nil
}

func (s *fakeStore) OverlaysInRange(ctx context.Context, start, end int64, types []models.OverlayType) ([]models.OverlayRecord, error) {
	var results []models.OverlayRecord
	for _, o := range s.overlays {
		if o.StartTime < start || o.StartTime >= end {
			continue
		}
		for _, t := range types {
			if o.Type == t {
				results = append(results, o)
				break
			}
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].StartTime < results[j].StartTime })
	return results, nil
}

func (s *fakeStore) AverageMetric(ctx context.Context, start, end int64) (float64, error) {
	sum, count := 0, 0
	for ts, hr := range s.heartRate {
		if ts >= start && ts < end {
			sum += hr
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return float64(sum) / float64(count), nil
}

func (s *fakeStore) LatestTimestamp(ctx context.Context) (int64, error) {
	var latest int64
	for ts := range s.steps {
		if ts > latest {
			latest = ts
		}
	}
	for _, o := range s.overlays {
		if o.StartTime > latest {
			latest = o.StartTime
		}
	}
	return latest, nil
}
