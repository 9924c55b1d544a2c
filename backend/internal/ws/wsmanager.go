package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"docsync/backend/internal/collab"
)

// 全局的WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

// Manager 持有 ws 层所有连接共享的依赖，按连接派生 Conn
type Manager struct {
	hub    *Hub
	rooms  *collab.Rooms
	svc    collab.Service
	saver  *collab.Autosaver
	events *collab.KafkaDispatcher
	sem    *collab.SemaphoreControl
}

func NewManager(hub *Hub, rooms *collab.Rooms, svc collab.Service,
	saver *collab.Autosaver, events *collab.KafkaDispatcher, sem *collab.SemaphoreControl) *Manager {
	return &Manager{hub: hub, rooms: rooms, svc: svc, saver: saver, events: events, sem: sem}
}

// WebSocketConnect 升级连接并进入读循环（阻塞至连接关闭）
// 身份由鉴权中间件写进 gin.Context；这里不校验文档权限，
// 房间加入/广播对任何已登录连接开放，权限只在保存时检查
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, userID, username, m.rooms, m.svc, m.saver, m.events, m.sem)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	go wsConn.writeLoop()

	// 最后再进入读循环（阻塞至连接关闭）
	wsConn.readLoop(c.Request.Context())
}
