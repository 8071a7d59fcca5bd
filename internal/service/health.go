package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"wisefido-health/internal/common/database"
	mqttcommon "wisefido-health/internal/common/mqtt"
	rediscommon "wisefido-health/internal/common/redis"
	"wisefido-health/internal/config"
	"wisefido-health/internal/consumer"
	"wisefido-health/internal/datalogging"
	"wisefido-health/internal/ingest"
	"wisefido-health/internal/notify"
	"wisefido-health/internal/query"
	"wisefido-health/internal/repository"
	"wisefido-health/internal/uploader"
)

// HealthService wisefido-health 服务
type HealthService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redis       *redis.Client
	mqttClient  *mqttcommon.Client
	loc         *time.Location
	store       repository.HealthStore
	engine      *query.Engine
	broadcaster *notify.Broadcaster
	pipeline    *ingest.Pipeline
	registry    *datalogging.Registry
	consumer    *consumer.MQTTConsumer

	cancelRelay func()
}

// NewHealthService 创建 Health 服务
func NewHealthService(cfg *config.Config, logger *zap.Logger) (*HealthService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 组装摄取与查询链路
	store := repository.NewPostgresHealthStore(db, logger)
	engine := query.NewEngine(store, loc, logger)
	broadcaster := notify.NewBroadcaster()
	kv := ingest.NewRedisKVStore(redisClient)
	pipeline := ingest.NewPipeline(store, kv, engine, broadcaster, loc, logger)

	registry := datalogging.NewRegistry()
	memfaultUploader := uploader.NewMemfaultUploader(cfg.Memfault.ChunksURL, cfg.Memfault.ProjectKey, logger)

	// 每个连接（手表）一套 tracker+router，共享同一条摄取管道
	newRouter := func(connID string) *datalogging.Router {
		connLogger := logger.With(zap.String("serial_number", connID))
		tracker := datalogging.NewTracker(pipeline, connLogger)
		return datalogging.NewRouter(tracker, memfaultUploader, connLogger)
	}

	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, registry, newRouter, logger)

	return &HealthService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redis:       redisClient,
		mqttClient:  mqttClient,
		loc:         loc,
		store:       store,
		engine:      engine,
		broadcaster: broadcaster,
		pipeline:    pipeline,
		registry:    registry,
		consumer:    mqttConsumer,
	}, nil
}

// Start 启动服务
func (s *HealthService) Start(ctx context.Context) error {
	s.logger.Info("Starting health service components")

	// 把进程内"已更新"事件转发到 Redis Pub/Sub，供其他服务订阅
	relayCtx, cancelRelay := context.WithCancel(ctx)
	s.cancelRelay = cancelRelay
	go s.relayUpdates(relayCtx)

	// 启动MQTT消费者
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	return nil
}

// relayUpdates 订阅进程内广播并发布到 Redis 频道
func (s *HealthService) relayUpdates(ctx context.Context) {
	ch, cancel := s.broadcaster.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			event := map[string]interface{}{
				"event":     "health_data_updated",
				"timestamp": time.Now().Unix(),
			}
			if err := rediscommon.PublishJSON(ctx, s.redis, s.config.Health.UpdatedChannel, event); err != nil {
				s.logger.Error("Failed to publish updated event", zap.Error(err))
			}
		}
	}
}

// SyncAndSummarize 按需同步并计算 30 天总览
//
// 向手表下发同步请求，在有界超时内等待一次"已更新"通知
// （等不到按"没有发生更新"处理，绝不无限阻塞），然后计算总览。
func (s *HealthService) SyncAndSummarize(ctx context.Context, serialNumber string) (*query.SummaryResult, error) {
	topic := fmt.Sprintf(s.config.Health.CommandTopicFmt, serialNumber)
	if err := s.mqttClient.Publish(topic, 1, false, []byte(`{"command":"requestHealthSync"}`)); err != nil {
		s.logger.Warn("Failed to publish sync request",
			zap.String("serial_number", serialNumber),
			zap.Error(err),
		)
	}

	if !s.broadcaster.AwaitUpdate(ctx, s.config.Health.SyncTimeout) {
		s.logger.Debug("No health update within sync timeout",
			zap.String("serial_number", serialNumber),
		)
	}

	return s.engine.Summary(ctx, time.Now().In(s.loc))
}

// Stop 停止服务
func (s *HealthService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping health service")

	if s.cancelRelay != nil {
		s.cancelRelay()
	}

	// 停止Consumer
	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	// 等在途批次落库
	if s.pipeline != nil {
		s.pipeline.Wait()
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redis != nil {
		rediscommon.Close(s.redis)
	}

	// 关闭数据库
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Health service stopped")
	return nil
}
