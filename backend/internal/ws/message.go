package ws

// 客户端事件统一解进这一个结构，按 Type 分发
// 缺 documentId 的广播类消息直接丢弃（广播通道没有应答语义，不回错误）
type ClientMessage struct {
	Type       string      `json:"type"`
	DocumentID string      `json:"documentId"`
	Content    string      `json:"content,omitempty"`
	AuthorID   uint64      `json:"authorId,omitempty"`
	IsTyping   bool        `json:"isTyping,omitempty"`
	Position   interface{} `json:"position,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

// 通用出站消息（反馈 / 错误 / 成员名单等）
type ServerMessage struct {
	Type       string           `json:"type"`
	DocumentID string           `json:"documentId,omitempty"`
	Content    string           `json:"content,omitempty"`
	Version    uint64           `json:"version,omitempty"`
	Code       string           `json:"code,omitempty"`
	Members    []PresenceMember `json:"members,omitempty"`
	Documents  []string         `json:"documents,omitempty"`
}

// join 时下发给加入者的当前房间状态（仅当房间状态已存在于内存中）
type StateMessage struct {
	Type       string `json:"type"` // 固定 "document-state"
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	Version    uint64 `json:"version"`
}

// 编辑广播：发给同房间除作者外的所有连接
// 不回发给作者本人，避免客户端把自己的击键再应用一遍（回声环）
type EditBroadcastMessage struct {
	Type       string `json:"type"` // 固定 "text-change"
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	AuthorID   uint64 `json:"authorId"`
	Version    uint64 `json:"version"`
}

// 打字指示器，纯中继，不落任何状态
type TypingMessage struct {
	Type       string `json:"type"` // 固定 "user-typing"
	DocumentID string `json:"documentId"`
	UserID     uint64 `json:"userId"`
	IsTyping   bool   `json:"isTyping"`
}

// 光标位置，纯中继
type CursorMessage struct {
	Type       string      `json:"type"` // 固定 "cursor-position"
	DocumentID string      `json:"documentId"`
	UserID     uint64      `json:"userId"`
	Position   interface{} `json:"position"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// 隐式实现 OutboundMessage 接口
func (m ServerMessage) MessageType() string        { return m.Type }
func (m StateMessage) MessageType() string         { return m.Type }
func (m EditBroadcastMessage) MessageType() string { return m.Type }
func (m TypingMessage) MessageType() string        { return m.Type }
func (m CursorMessage) MessageType() string        { return m.Type }
