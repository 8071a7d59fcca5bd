package config

import (
	"fmt"
	"os"
	"time"

	"wisefido-health/internal/common/config"
)

// Config wisefido-health 服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// Health 服务特定配置
	Health struct {
		Timezone        string        // IANA 时区名，日历分桶使用
		DataTopic       string        // 数据记录帧主题，如 "watch/+/datalogging"
		CommandTopicFmt string        // 下行命令主题模板，如 "watch/%s/commands"
		UpdatedChannel  string        // "健康数据已更新"的 Redis Pub/Sub 频道
		SyncTimeout     time.Duration // 按需同步的等待上限
	}

	// Memfault 固件诊断块上传配置
	Memfault struct {
		ChunksURL  string // Memfault chunks API 地址
		ProjectKey string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "wisefido_health")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "mqtt://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-health")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "wisefido")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	// Health 服务配置
	cfg.Health.Timezone = getEnv("HEALTH_TIMEZONE", "America/Toronto")
	cfg.Health.DataTopic = getEnv("HEALTH_DATA_TOPIC", "watch/+/datalogging")
	cfg.Health.CommandTopicFmt = getEnv("HEALTH_COMMAND_TOPIC_FMT", "watch/%s/commands")
	cfg.Health.UpdatedChannel = getEnv("HEALTH_UPDATED_CHANNEL", "health:updated")
	cfg.Health.SyncTimeout = 10 * time.Second
	if v := os.Getenv("HEALTH_SYNC_TIMEOUT_SEC"); v != "" {
		var sec int
		fmt.Sscanf(v, "%d", &sec)
		if sec > 0 {
			cfg.Health.SyncTimeout = time.Duration(sec) * time.Second
		}
	}

	cfg.Memfault.ChunksURL = getEnv("MEMFAULT_CHUNKS_URL", "https://chunks.memfault.com")
	cfg.Memfault.ProjectKey = getEnv("MEMFAULT_PROJECT_KEY", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Location 解析配置的时区（解析失败时报错，不回退 UTC）
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Health.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Health.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
