package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// PublishJSON 发布 JSON 消息到 Redis Pub/Sub 频道
//
// Pub/Sub 没有回放缓冲：未在监听的订阅者收不到历史消息。
// 跨服务的"数据已更新"类事件使用该通道（与 Streams 不同，不保留历史）。
func PublishJSON(ctx context.Context, client *redis.Client, channel string, data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, jsonBytes).Err()
}

// SetJSON 将值序列化为 JSON 后写入指定键（ttl 为 0 表示不过期）
func SetJSON(ctx context.Context, client *redis.Client, key string, data interface{}, ttl time.Duration) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, jsonBytes, ttl).Err()
}
