package models

// 传输层投递的数据记录帧类型
const (
	EnvelopeOpenSession  = "openSession"
	EnvelopeSendData     = "sendData"
	EnvelopeCloseSession = "closeSession"
)

// DataloggingEnvelope 传输层数据记录帧
//
// 传输层保证按会话有序、逐块恰好一次投递；Payload 为 base64 编码的
// 原始数据块（encoding/json 对 []byte 自动处理）。
type DataloggingEnvelope struct {
	Type      string    `json:"type"` // openSession, sendData, closeSession
	SessionID uint8     `json:"sessionId"`
	Tag       uint32    `json:"tag"`
	AppUUID   string    `json:"appUuid,omitempty"`
	ItemSize  uint16    `json:"itemSize,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	ItemsLeft uint32    `json:"itemsLeft,omitempty"`
	Watch     WatchInfo `json:"watch"`
}
