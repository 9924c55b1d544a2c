package collab

import "time"

// DocEditEvent 每次中继成功应用的编辑事件都会异步投递到 Kafka，
// 作为下游（审计/索引/统计）的变更流；broker 不可用不影响广播主链路
type DocEditEvent struct {
	EventType string `json:"eventType"` // 固定 "EDIT_BROADCAST"
	DocID     string `json:"docId"`
	// 房间本地的广播版本号（不是持久化版本）
	Version   uint64    `json:"version"`
	AuthorID  uint64    `json:"authorId"`
	Content   string    `json:"content"`
	AppliedAt time.Time `json:"appliedAt"`
}
