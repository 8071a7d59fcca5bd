package codec

import (
	"encoding/binary"
	"fmt"

	"wisefido-health/internal/models"
)

// memfault 块线格式: u32 小端长度前缀 + 等长的块内容

// ParseMemfaultChunk 解码长度前缀的 Memfault 固件诊断块
//
// 声明长度超出剩余字节时返回错误（调用方丢弃该块，fail closed）。
func ParseMemfaultChunk(payload []byte) (*models.MemfaultChunk, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("memfault chunk too short: %d bytes", len(payload))
	}

	length := binary.LittleEndian.Uint32(payload[0:4])
	if int(length) > len(payload)-4 {
		return nil, fmt.Errorf("memfault chunk length %d exceeds remaining %d bytes", length, len(payload)-4)
	}

	return &models.MemfaultChunk{
		Bytes: payload[4 : 4+int(length)],
	}, nil
}
