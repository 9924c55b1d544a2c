package ws

import (
	"sync"

	"docsync/backend/internal/cache"
)

// Subscriber 房间成员的最小抽象：能收消息、能报身份
// Hub 只面向这个接口做扇出，不直接依赖 websocket 连接，便于单测
type Subscriber interface {
	// ConnID 连接级标识（同一用户多标签页是多个连接）
	ConnID() string
	UserID() uint64
	// Enqueue 入队即返回，不等网络确认（fire-and-forget）
	Enqueue(msg OutboundMessage)
}

type Hub struct {
	// presence 是 Redis 实现的在线状态镜像，Hub 本身不往里写，
	// 由 Conn 在 join/心跳时维护；这里持有是为了让 ws 层统一取用
	presence cache.PresenceCache
	// 读写锁保护 rooms，加入/离开/广播都会先加锁
	mu sync.RWMutex
	// docID -> set of subscribers
	// 房间成员以“连接”为粒度：一个用户可开多个标签页/设备，广播要逐连接发
	rooms map[string]map[Subscriber]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[Subscriber]struct{})}
}

// Join 将连接加入指定文档房间；重复加入是幂等的重新订阅
// 不限制房间人数，也不做权限校验（权限只在持久化保存时检查，见 collab.Service）
func (h *Hub) Join(docID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[Subscriber]struct{})
	}
	h.rooms[docID][s] = struct{}{}
}

// Leave 将连接从指定文档房间移除（只在传输层连接关闭时调用）
func (h *Hub) Leave(docID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[docID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// RemoveConnection 连接断开时把它从所有已加入的房间里摘掉
// 只清理成员表；房间内容状态（collab.Rooms）在进程生命周期内不回收
func (h *Hub) RemoveConnection(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for docID, subs := range h.rooms {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.rooms, docID)
			}
		}
	}
}

// Members 当前房间的订阅连接数（测试和诊断用）
func (h *Hub) Members(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// BroadcastExcept 把消息扇出给房间内除 author 外的所有连接
// 接收集 = 房间成员 - 事件作者；作者永远收不到自己编辑的回声
func (h *Hub) BroadcastExcept(docID string, author Subscriber, msg OutboundMessage) {
	h.mu.RLock()
	subs := h.rooms[docID]
	targets := make([]Subscriber, 0, len(subs))
	for s := range subs {
		if s == author {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.Enqueue(msg)
	}
}

// NotifyUser 给房间内属于某个用户的全部连接发消息（防抖保存失败时回告发起者）
func (h *Hub) NotifyUser(docID string, userID uint64, msg OutboundMessage) {
	h.mu.RLock()
	subs := h.rooms[docID]
	targets := make([]Subscriber, 0, len(subs))
	for s := range subs {
		if s.UserID() == userID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.Enqueue(msg)
	}
}
