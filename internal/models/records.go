package models

import (
	"github.com/google/uuid"
)

// 数据记录通道 Tag 定义（由手表固件约定）
// 81/83/84/85 为健康数据保留，86 为系统应用的固件诊断块
const (
	TagSteps          uint32 = 81 // 步数记录（心率内嵌其中）
	TagSleep          uint32 = 83 // 睡眠记录（使用 overlay 记录布局）
	TagOverlay        uint32 = 84 // 区间记录（睡眠/深睡/小睡等）
	TagHeartRate      uint32 = 85 // 独立心率通道（保留，当前固件不产生独立记录）
	TagMemfaultChunks uint32 = 86 // Memfault 固件诊断块（仅系统应用）
)

// SystemAppUUID 系统应用 UUID
// 只有系统应用的会话才会产生健康记录，其他应用的数据一律跳过
var SystemAppUUID = uuid.MustParse("36d8c6ed-4c83-4fa1-a9e2-8f12dc941f8c")

// IsHealthTag 判断 tag 是否为健康数据通道
func IsHealthTag(tag uint32) bool {
	switch tag {
	case TagSteps, TagSleep, TagOverlay, TagHeartRate:
		return true
	}
	return false
}

// Session 数据记录会话
//
// 会话由手表以 0-255 的数字 ID 标识，ID 在设备生命周期内循环复用，
// 仅在"当前打开的会话"范围内唯一。
type Session struct {
	Tag      uint32    // 通道类型
	AppUUID  uuid.UUID // 所属应用
	ItemSize uint16    // 单条记录的字节数（设备定义）
}

// PendingDataItem 乱序到达的数据块
//
// 数据经常先于 openSession 到达，此时按会话 ID 暂存，
// 等到匹配的 openSession 再按到达顺序回放。队列只在内存中短暂存在。
type PendingDataItem struct {
	Payload   []byte
	ItemsLeft uint32
}

// WatchInfo 手表身份信息（随连接传入，用于固件块上传标注）
type WatchInfo struct {
	SerialNumber    string `json:"serial_number"`
	HardwareRev     string `json:"hardware_rev"`
	FirmwareVersion string `json:"firmware_version"`
}

// HealthRecord 步数记录（解码后不可变）
//
// 时间戳为设备本地采样时刻的 epoch 秒，入库时以 timestamp 去重。
// 心率内嵌在步数记录中，仅当固件支持（itemSize 足够长）且值非 0 时存在。
type HealthRecord struct {
	Timestamp       int64 // epoch 秒
	Steps           int
	ActiveCalories  int
	RestingCalories int
	DistanceCm      int
	ActiveMinutes   int
	HeartRate       *int // 可选，nil 表示该样本无心率
}

// OverlayType 区间记录类型（封闭枚举）
type OverlayType int

const (
	OverlayTypeUnknown   OverlayType = 0
	OverlayTypeSleep     OverlayType = 1
	OverlayTypeDeepSleep OverlayType = 2
	OverlayTypeNap       OverlayType = 3
	OverlayTypeDeepNap   OverlayType = 4
)

// String 返回类型名称（用于日志）
func (t OverlayType) String() string {
	switch t {
	case OverlayTypeSleep:
		return "Sleep"
	case OverlayTypeDeepSleep:
		return "DeepSleep"
	case OverlayTypeNap:
		return "Nap"
	case OverlayTypeDeepNap:
		return "DeepNap"
	}
	return "Unknown"
}

// OverlayRecord 区间记录（睡眠等），入库时以 (StartTime, Type) 去重
type OverlayRecord struct {
	StartTime   int64 // epoch 秒
	DurationSec int
	Type        OverlayType
}

// EndTime 区间结束时刻（epoch 秒）
func (r *OverlayRecord) EndTime() int64 {
	return r.StartTime + int64(r.DurationSec)
}

// MemfaultChunk 长度前缀的固件诊断块
// 与健康记录结构无关，仅复用同一套块路由机制
type MemfaultChunk struct {
	Bytes []byte
}
