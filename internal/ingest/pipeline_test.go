package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wisefido-health/internal/models"
	"wisefido-health/internal/notify"
	"wisefido-health/internal/query"
)

// fakeHealthStore 内存实现（幂等 upsert，测试用）
type fakeHealthStore struct {
	mu             sync.Mutex
	healthRecords  map[int64]models.HealthRecord
	overlayRecords map[[2]int64]models.OverlayRecord
	upsertErr      error
}

func newFakeHealthStore() *fakeHealthStore {
	return &fakeHealthStore{
		healthRecords:  make(map[int64]models.HealthRecord),
		overlayRecords: make(map[[2]int64]models.OverlayRecord),
	}
}

func (s *fakeHealthStore) UpsertHealthRecords(ctx context.Context, records []models.HealthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, rec := range records {
		if _, ok := s.healthRecords[rec.Timestamp]; !ok {
			s.healthRecords[rec.Timestamp] = rec
		}
	}
	return nil
}

func (s *fakeHealthStore) UpsertOverlayRecords(ctx context.Context, records []models.OverlayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, rec := range records {
		key := [2]int64{rec.StartTime, int64(rec.Type)}
		if _, ok := s.overlayRecords[key]; !ok {
			s.overlayRecords[key] = rec
		}
	}
	return nil
}

func (s *fakeHealthStore) TotalSteps(ctx context.Context, start, end int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for ts, rec := range s.healthRecords {
		if ts >= start && ts < end {
			total += rec.Steps
		}
	}
	return total, nil
}

func (s *fakeHealthStore) OverlaysInRange(ctx context.Context, start, end int64, types []models.OverlayType) ([]models.OverlayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []models.OverlayRecord
	for _, rec := range s.overlayRecords {
		if rec.StartTime < start || rec.StartTime >= end {
			continue
		}
		for _, t := range types {
			if rec.Type == t {
				results = append(results, rec)
				break
			}
		}
	}
	return results, nil
}

func (s *fakeHealthStore) AverageMetric(ctx context.Context, start, end int64) (float64, error) {
	return 0, nil
}

func (s *fakeHealthStore) LatestTimestamp(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *fakeHealthStore) healthCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.healthRecords)
}

func (s *fakeHealthStore) overlayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.overlayRecords)
}

// fakeKV 内存 KV（记录每个键的 Set 次数）
type fakeKV struct {
	mu       sync.Mutex
	data     map[string]string
	setCount map[string]int
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		data:     make(map[string]string),
		setCount: make(map[string]int),
	}
}

func (kv *fakeKV) Get(ctx context.Context, key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	val, ok := kv.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (kv *fakeKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	kv.setCount[key]++
	return nil
}

func (kv *fakeKV) sets(key string) int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.setCount[key]
}

func newTestPipeline(store *fakeHealthStore) (*Pipeline, *fakeKV, *notify.Broadcaster) {
	logger := zap.NewNop()
	kv := newFakeKV()
	broadcaster := notify.NewBroadcaster()
	engine := query.NewEngine(store, time.UTC, logger)
	pipeline := NewPipeline(store, kv, engine, broadcaster, time.UTC, logger)
	return pipeline, kv, broadcaster
}

func stepsPayload(itemSize int, timestamps ...uint32) []byte {
	payload := make([]byte, 0, itemSize*len(timestamps))
	for _, ts := range timestamps {
		item := make([]byte, itemSize)
		binary.LittleEndian.PutUint32(item[0:4], ts)
		binary.LittleEndian.PutUint16(item[4:6], 100)
		payload = append(payload, item...)
	}
	return payload
}

func overlayPayload(itemSize int, overlayType uint16, startTimes ...uint32) []byte {
	payload := make([]byte, 0, itemSize*len(startTimes))
	for _, start := range startTimes {
		item := make([]byte, itemSize)
		binary.LittleEndian.PutUint16(item[0:2], overlayType)
		binary.LittleEndian.PutUint32(item[2:6], start)
		binary.LittleEndian.PutUint32(item[6:10], 1800)
		payload = append(payload, item...)
	}
	return payload
}

func systemSession(tag uint32, itemSize uint16) *models.Session {
	return &models.Session{Tag: tag, AppUUID: models.SystemAppUUID, ItemSize: itemSize}
}

func TestPipeline_StepsBatchUpsertsNotifiesAndRecomputes(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, kv, broadcaster := newTestPipeline(store)

	ch, cancel := broadcaster.Subscribe()
	defer cancel()

	// 60 字节 / itemSize 20 = 3 条记录，最后一个块
	payload := stepsPayload(20, 1700000000, 1700000060, 1700000120)
	err := pipeline.ProcessBatch(context.Background(), systemSession(models.TagSteps, 20), payload, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, store.healthCount())

	select {
	case <-ch:
	default:
		t.Fatal("expected health data updated notification")
	}

	// 当天首个完成批次 → 重算一次
	assert.Equal(t, 1, kv.sets(statsCursorKey))
	assert.Equal(t, 1, kv.sets(statsSnapshotKey))
}

func TestPipeline_RecomputeThrottledToOncePerDay(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, kv, _ := newTestPipeline(store)

	payload := stepsPayload(20, 1700000000)
	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagSteps, 20), payload, 0))
	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagSteps, 20), payload, 0))

	// 同一日历日的第二个完成批次不再重算
	assert.Equal(t, 1, kv.sets(statsCursorKey))
	assert.Equal(t, 1, kv.sets(statsSnapshotKey))
}

func TestPipeline_NoRecomputeWhenItemsLeft(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, kv, _ := newTestPipeline(store)

	payload := stepsPayload(20, 1700000000)
	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagSteps, 20), payload, 5))

	assert.Equal(t, 0, kv.sets(statsCursorKey))
}

func TestPipeline_OverlayBatchUpserts(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, _, broadcaster := newTestPipeline(store)

	ch, cancel := broadcaster.Subscribe()
	defer cancel()

	payload := overlayPayload(10, 1, 1700000000, 1700003600)
	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagSleep, 10), payload, 0))

	assert.Equal(t, 2, store.overlayCount())
	select {
	case <-ch:
	default:
		t.Fatal("expected health data updated notification")
	}
}

func TestPipeline_DuplicateBatchIsIdempotent(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, _, _ := newTestPipeline(store)

	payload := stepsPayload(20, 1700000000, 1700000060)
	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagSteps, 20), payload, 1))
	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagSteps, 20), payload, 0))

	// 重复投递不会重复计数
	assert.Equal(t, 2, store.healthCount())
}

func TestPipeline_EmptyDecodeEmitsNothing(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, _, broadcaster := newTestPipeline(store)

	ch, cancel := broadcaster.Subscribe()
	defer cancel()

	// 不足一条记录
	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagSteps, 20), []byte{1, 2, 3}, 1))

	assert.Equal(t, 0, store.healthCount())
	select {
	case <-ch:
		t.Fatal("no notification expected for empty decode")
	default:
	}
}

func TestPipeline_NonSystemAppSkippedEntirely(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, kv, broadcaster := newTestPipeline(store)

	ch, cancel := broadcaster.Subscribe()
	defer cancel()

	session := &models.Session{
		Tag:      models.TagSteps,
		AppUUID:  uuid.MustParse("0f0f0f0f-0f0f-0f0f-0f0f-0f0f0f0f0f0f"),
		ItemSize: 20,
	}
	payload := stepsPayload(20, 1700000000)
	require.NoError(t, pipeline.ProcessBatch(context.Background(), session, payload, 0))

	// 不解码、不入库、不通知、不重算
	assert.Equal(t, 0, store.healthCount())
	assert.Equal(t, 0, kv.sets(statsCursorKey))
	select {
	case <-ch:
		t.Fatal("no notification expected for non-system app")
	default:
	}
}

func TestPipeline_HeartRateTagProducesNoRecords(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, _, _ := newTestPipeline(store)

	require.NoError(t, pipeline.ProcessBatch(context.Background(), systemSession(models.TagHeartRate, 4), []byte{1, 2, 3, 4}, 1))

	assert.Equal(t, 0, store.healthCount())
	assert.Equal(t, 0, store.overlayCount())
}

func TestPipeline_BadBatchDoesNotBlockSubsequent(t *testing.T) {
	store := newFakeHealthStore()
	pipeline, _, _ := newTestPipeline(store)

	store.upsertErr = errors.New("db down")
	payload := stepsPayload(20, 1700000000)
	pipeline.HandleBatch(systemSession(models.TagSteps, 20), payload, 1)
	pipeline.Wait()

	// 失败只记录日志；恢复后后续批次正常处理
	store.mu.Lock()
	store.upsertErr = nil
	store.mu.Unlock()

	pipeline.HandleBatch(systemSession(models.TagSteps, 20), stepsPayload(20, 1700000060), 1)
	pipeline.Wait()

	assert.Equal(t, 1, store.healthCount())
}
