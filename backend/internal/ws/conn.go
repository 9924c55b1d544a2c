package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"docsync/backend/internal/collab"
	"docsync/backend/internal/store"
)

const presenceTTL = 600 * time.Second

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	connID   string
	userID   uint64
	username string
	// chan是 Go 的通道，send 是本连接的出站队列；
	// 写循环持续消费它，入队满了直接丢（广播不等网络确认）
	send chan OutboundMessage
	// sendMu 保护 send 的关闭：Hub 扇出在锁外调用 Enqueue，
	// 与读循环退出是并发的，必须保证不往已关闭的通道写
	sendMu sync.Mutex
	closed bool
	// 房间内容状态（内存态，last-write-wins）
	rooms *collab.Rooms
	// 持久化调和器
	svc collab.Service
	// 防抖自动保存
	saver *collab.Autosaver
	// Kafka 变更流（可以为 nil，测试环境不接 broker）
	events *collab.KafkaDispatcher
	// 限制并发落库保存数量
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string,
	rooms *collab.Rooms, svc collab.Service, saver *collab.Autosaver,
	events *collab.KafkaDispatcher, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		connID:   fmt.Sprintf("c-%d", time.Now().UnixNano()),
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, 32),
		rooms:    rooms,
		svc:      svc,
		saver:    saver,
		events:   events,
		sem:      sem,
	}
}

func (c *Conn) ConnID() string { return c.connID }
func (c *Conn) UserID() uint64 { return c.userID }

func (c *Conn) Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	// 连接已关闭：广播目标快照可能仍持有本连接，静默丢弃
	if c.closed {
		return
	}
	// select 同时评估多个通道操作；队列满时走 default 分支直接丢弃，
	// 宁可丢一条广播也不能阻塞发送方的事件处理
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend 标记连接关闭并关掉出站通道（写循环随之退出）
// 关闭动作和 Enqueue 在同一把锁下互斥，迟到的入队不会 panic
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handleJoin 加入文档房间；若房间状态已在内存中，把当前状态只发给加入者
// 冷启动（进程重启后第一次 join）不下发状态，客户端走文档拉取接口
func (c *Conn) handleJoin(ctx context.Context, msg ClientMessage) {
	docID := msg.DocumentID
	c.hub.Join(docID, c)

	// 在线名单镜像到 Redis（心跳键带 TTL）
	if err := c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence add member failed doc=%s user=%d: %v", docID, c.userID, err)
	}

	if st, ok := c.rooms.State(docID); ok {
		c.Enqueue(StateMessage{Type: "document-state", DocumentID: docID, Content: st.Content, Version: st.Version})
	}

	// 把其他在线成员最近一次的光标位置回放给加入者，
	// 迟到的成员不用等下一次移动就能看到别人的光标
	members, err := c.hub.presence.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		log.Printf("get alive members failed doc=%s: %v", docID, err)
		return
	}
	for _, m := range members {
		if m.UserID == c.userID {
			continue
		}
		cur, err := c.hub.presence.GetCursor(ctx, docID, m.UserID)
		if err != nil || len(cur) == 0 {
			continue
		}
		c.Enqueue(CursorMessage{Type: "cursor-position", DocumentID: docID, UserID: m.UserID, Position: json.RawMessage(cur)})
	}
}

// handleHeartbeat 心跳续期：重新 AddMember 刷新逻辑 TTL
// 不发心跳也不编辑的连接过期后会从在线名单里消失（连接本身不断开）
func (c *Conn) handleHeartbeat(ctx context.Context, msg ClientMessage) {
	if err := c.hub.presence.AddMember(ctx, msg.DocumentID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence refresh failed doc=%s user=%d: %v", msg.DocumentID, c.userID, err)
	}
	c.Enqueue(ServerMessage{Type: "feedback", DocumentID: msg.DocumentID, Content: "Heartbeat received"})
}

// handleTextChange 广播中继的主路径：
// 1. 整篇覆盖更新房间状态，版本 +1
// 2. 扇出给房间内除作者外的所有连接（不回 ack，不重试）
// 3. 投递变更事件到 Kafka（尽力而为）
// 4. 重置防抖计时器，静默期满后落库
// 持久化失败不会影响这里的广播——编辑（易失）与保存（持久）解耦
func (c *Conn) handleTextChange(ctx context.Context, msg ClientMessage) {
	docID := msg.DocumentID
	version := c.rooms.ApplyEdit(docID, msg.Content)

	// 编辑本身就是活跃证明，顺带刷新在线 TTL
	// （长时间只编辑不发心跳的连接不应从在线名单里消失）
	if err := c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence refresh failed doc=%s user=%d: %v", docID, c.userID, err)
	}

	c.hub.BroadcastExcept(docID, c, EditBroadcastMessage{
		Type:       "text-change",
		DocumentID: docID,
		Content:    msg.Content,
		AuthorID:   c.userID,
		Version:    version,
	})

	if c.events != nil {
		c.events.Enqueue(collab.DocEditEvent{
			EventType: "EDIT_BROADCAST",
			DocID:     docID,
			Version:   version,
			AuthorID:  c.userID,
			Content:   msg.Content,
			AppliedAt: time.Now(),
		})
	}

	if c.saver != nil {
		c.saver.Touch(docID, msg.Content, c.userID)
	}
}

func (c *Conn) handleTyping(msg ClientMessage) {
	c.hub.BroadcastExcept(msg.DocumentID, c, TypingMessage{
		Type:       "user-typing",
		DocumentID: msg.DocumentID,
		UserID:     c.userID,
		IsTyping:   msg.IsTyping,
	})
}

func (c *Conn) handleCursor(ctx context.Context, msg ClientMessage) {
	c.hub.BroadcastExcept(msg.DocumentID, c, CursorMessage{
		Type:       "cursor-position",
		DocumentID: msg.DocumentID,
		UserID:     c.userID,
		Position:   msg.Position,
	})
	// 方便迟到的成员取到最近一次光标位置
	if b, err := json.Marshal(msg.Position); err == nil {
		if err := c.hub.presence.SetCursor(ctx, msg.DocumentID, c.userID, b, presenceTTL); err != nil {
			log.Printf("presence set cursor failed doc=%s user=%d: %v", msg.DocumentID, c.userID, err)
		}
	}
}

// handleSave 显式保存：绕过防抖立即落库
// 错误按类别回告：权限/不存在/服务端错误都会通知发起者（区别于静默的自动保存）
func (c *Conn) handleSave(ctx context.Context, msg ClientMessage) {
	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if c.sem != nil {
		if err := c.sem.Acquire(saveCtx); err != nil {
			c.Enqueue(ServerMessage{Type: "save-error", DocumentID: msg.DocumentID, Code: "SAVE_BUSY"})
			return
		}
		defer c.sem.Release()
	}

	content := msg.Content
	if content == "" {
		// 客户端没带内容就保存房间当前状态
		if st, ok := c.rooms.State(msg.DocumentID); ok {
			content = st.Content
		}
	}

	doc, err := c.svc.Save(saveCtx, msg.DocumentID, content, c.userID)
	if err != nil {
		c.Enqueue(ServerMessage{Type: "save-error", DocumentID: msg.DocumentID, Code: SaveErrorCode(err)})
		return
	}
	// 显式保存之后不能再让挂起的防抖计时器晚一步落一份旧内容：
	// Flush 停掉计时器并同步落库（内容相同时被去重短路，不产生第二次写）
	if c.saver != nil {
		c.saver.Flush(msg.DocumentID)
	}
	c.Enqueue(ServerMessage{Type: "save-ok", DocumentID: msg.DocumentID, Version: doc.Version})
}

// SaveErrorCode 保存失败统一映射成对外错误码，
// 显式保存和防抖保存的通知走同一张表，原始错误文本不外泄
func SaveErrorCode(err error) string {
	switch {
	case errors.Is(err, collab.ErrNoWritePermission):
		return "NO_WRITE_PERMISSION"
	case errors.Is(err, store.ErrDocumentNotFound):
		return "DOCUMENT_NOT_FOUND"
	default:
		return "SAVE_FAILED"
	}
}

func (c *Conn) handleLoad(ctx context.Context, msg ClientMessage) {
	doc, err := c.svc.Load(ctx, msg.DocumentID, c.userID)
	if err != nil {
		code := "LOAD_FAILED"
		if errors.Is(err, collab.ErrNoReadPermission) {
			code = "NO_READ_PERMISSION"
		} else if errors.Is(err, store.ErrDocumentNotFound) {
			code = "DOCUMENT_NOT_FOUND"
		}
		c.Enqueue(ServerMessage{Type: "error", DocumentID: msg.DocumentID, Code: code})
		return
	}
	c.Enqueue(ServerMessage{Type: "load-document", DocumentID: msg.DocumentID, Content: doc.Content, Version: doc.Version})
}

func (c *Conn) handleShowMembers(ctx context.Context, msg ClientMessage) {
	members, err := c.hub.presence.GetAliveMembersWithNames(ctx, msg.DocumentID)
	if err != nil {
		log.Printf("get alive members failed doc=%s: %v", msg.DocumentID, err)
		return
	}
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
	}
	c.Enqueue(ServerMessage{Type: "show-members", DocumentID: msg.DocumentID, Members: out})
}

// handleShowDocuments 列出当前有在线痕迹的文档房间（来自 Redis 扫描）
func (c *Conn) handleShowDocuments(ctx context.Context) {
	documents, err := c.hub.presence.GetDocuments(ctx)
	if err != nil {
		log.Printf("get documents failed: %v", err)
		return
	}
	c.Enqueue(ServerMessage{Type: "show-documents", Documents: documents})
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		// 传输层断开才会走到这里：从所有房间摘掉本连接
		// 已经把本用户标成“正在输入”的接收端不会收到额外通知，
		// 残留的指示器等下一个事件覆盖（presence 是建议性的）
		c.hub.RemoveConnection(c)
		c.closeSend()
	}()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%d): %v", c.userID, err)
			return
		}

		// 缺 documentId 的消息静默丢弃（广播通道没有应答语义）
		// show-documents 是全局查询，天然不带 documentId
		if msg.DocumentID == "" && msg.Type != "show-documents" {
			continue
		}

		switch msg.Type {
		case "join-document":
			c.handleJoin(ctx, msg)

		case "heartbeat":
			c.handleHeartbeat(ctx, msg)

		case "text-change":
			c.handleTextChange(ctx, msg)

		case "typing":
			c.handleTyping(msg)

		case "cursor-position":
			c.handleCursor(ctx, msg)

		case "save-document":
			c.handleSave(ctx, msg)

		case "load-document":
			c.handleLoad(ctx, msg)

		case "show-members":
			c.handleShowMembers(ctx, msg)

		case "show-documents":
			c.handleShowDocuments(ctx)

		default:
			// 忽略未知类型，回一条提示
			c.Enqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
