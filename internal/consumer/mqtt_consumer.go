package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	mqttcommon "wisefido-health/internal/common/mqtt"
	"wisefido-health/internal/config"
	"wisefido-health/internal/datalogging"
	"wisefido-health/internal/models"
)

// RouterFactory 为新连接创建路由器（连接 = 手表序列号）
type RouterFactory func(connID string) *datalogging.Router

// MQTTConsumer 数据记录帧的MQTT消费者
//
// 订阅 "watch/{serial}/datalogging"，把帧解码为 open/send/close 调用
// 并分发到该连接的路由器。单个连接的帧由 broker 保证有序，
// 会话内 FIFO 因此成立。
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqttcommon.Client
	registry   *datalogging.Registry
	newRouter  RouterFactory
	logger     *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	registry *datalogging.Registry,
	newRouter RouterFactory,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		registry:   registry,
		newRouter:  newRouter,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.Health.DataTopic
	if topic == "" {
		return fmt.Errorf("datalogging MQTT topic not configured")
	}

	if err := c.mqttClient.Subscribe(topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to datalogging topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	topic := c.config.Health.DataTopic
	if topic != "" {
		if err := c.mqttClient.Unsubscribe(topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理单帧
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	serial := serialFromTopic(topic)
	if serial == "" {
		return fmt.Errorf("cannot extract watch serial from topic: %s", topic)
	}

	var envelope models.DataloggingEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal datalogging envelope: %w", err)
	}

	router, ok := c.registry.Get(serial)
	if !ok {
		router = c.newRouter(serial)
		c.registry.Register(serial, router)
		c.logger.Info("Registered datalogging router",
			zap.String("serial_number", serial),
		)
	}

	switch envelope.Type {
	case models.EnvelopeOpenSession:
		appUUID, err := uuid.Parse(envelope.AppUUID)
		if err != nil {
			return fmt.Errorf("invalid app uuid %q: %w", envelope.AppUUID, err)
		}
		router.OpenSession(envelope.SessionID, envelope.Tag, appUUID, envelope.ItemSize)

	case models.EnvelopeSendData:
		// sendData 的 appUuid 可能缺失（健康路径不需要它，会话里已有）
		appUUID := uuid.Nil
		if envelope.AppUUID != "" {
			if parsed, err := uuid.Parse(envelope.AppUUID); err == nil {
				appUUID = parsed
			}
		}
		router.SendData(envelope.SessionID, envelope.Tag, appUUID, envelope.Payload, envelope.ItemsLeft, envelope.Watch)

	case models.EnvelopeCloseSession:
		router.CloseSession(envelope.SessionID, envelope.Tag)

	default:
		c.logger.Debug("Unhandled envelope type",
			zap.String("type", envelope.Type),
			zap.String("serial_number", serial),
		)
	}

	return nil
}

// serialFromTopic 从 "watch/{serial}/datalogging" 提取序列号
func serialFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
