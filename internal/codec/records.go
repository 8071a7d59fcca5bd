// Package codec 提供设备二进制记录的无状态解码
//
// 手表以固定记录长度（itemSize，由设备在 openSession 时声明）打包数据，
// 每个 payload 含 len(payload)/itemSize 条完整记录。所有字段为小端。
//
// 步数记录布局（最少 14 字节，itemSize >= 15 时带心率）:
//   offset 0  u32  timestamp (epoch 秒)
//   offset 4  u16  steps
//   offset 6  u16  active calories
//   offset 8  u16  resting calories
//   offset 10 u16  distance (cm)
//   offset 12 u16  active minutes
//   offset 14 u8   heart rate（可选，0 表示无效）
//
// 区间记录布局（最少 10 字节）:
//   offset 0  u16  overlay type
//   offset 2  u32  start time (epoch 秒)
//   offset 6  u32  duration (秒)
//
// itemSize 大于已知字段时多余字节跳过（固件可能追加字段）；
// payload 末尾不足一条记录的字节忽略（已知且容忍的边界情况，不是错误）。
package codec

import (
	"encoding/binary"

	"wisefido-health/internal/models"
)

const (
	stepsRecordMinSize       = 14 // 不含心率字节
	stepsRecordHeartRateSize = 15 // 含心率字节
	overlayRecordMinSize     = 10
)

// ParseSteps 解码步数记录
//
// itemSize 小于最小记录长度时无法定位字段，返回空切片。
// 心率字节只在 itemSize >= 15 时存在，且 0 视为"无心率"。
func ParseSteps(payload []byte, itemSize uint16) []models.HealthRecord {
	size := int(itemSize)
	if size < stepsRecordMinSize {
		return nil
	}

	count := len(payload) / size
	if count == 0 {
		return nil
	}

	records := make([]models.HealthRecord, 0, count)
	for i := 0; i < count; i++ {
		item := payload[i*size : (i+1)*size]

		rec := models.HealthRecord{
			Timestamp:       int64(binary.LittleEndian.Uint32(item[0:4])),
			Steps:           int(binary.LittleEndian.Uint16(item[4:6])),
			ActiveCalories:  int(binary.LittleEndian.Uint16(item[6:8])),
			RestingCalories: int(binary.LittleEndian.Uint16(item[8:10])),
			DistanceCm:      int(binary.LittleEndian.Uint16(item[10:12])),
			ActiveMinutes:   int(binary.LittleEndian.Uint16(item[12:14])),
		}

		if size >= stepsRecordHeartRateSize {
			if hr := int(item[14]); hr > 0 {
				rec.HeartRate = &hr
			}
		}

		records = append(records, rec)
	}

	return records
}

// ParseOverlay 解码区间记录（睡眠通道 83 与 overlay 通道 84 共用该布局）
func ParseOverlay(payload []byte, itemSize uint16) []models.OverlayRecord {
	size := int(itemSize)
	if size < overlayRecordMinSize {
		return nil
	}

	count := len(payload) / size
	if count == 0 {
		return nil
	}

	records := make([]models.OverlayRecord, 0, count)
	for i := 0; i < count; i++ {
		item := payload[i*size : (i+1)*size]

		records = append(records, models.OverlayRecord{
			Type:        models.OverlayType(binary.LittleEndian.Uint16(item[0:2])),
			StartTime:   int64(binary.LittleEndian.Uint32(item[2:6])),
			DurationSec: int(binary.LittleEndian.Uint32(item[6:10])),
		})
	}

	return records
}
