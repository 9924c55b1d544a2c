package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docsync/backend/internal/cache"
	"docsync/backend/internal/collab"
	"docsync/backend/internal/store"
)

// 内存版 PresenceCache：记录刷新调用，喂给 join/heartbeat/show-* 路径
type fakePresence struct {
	members map[string][]cache.PresenceMember
	cursors map[string][]byte
	adds    []string
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		members: make(map[string][]cache.PresenceMember),
		cursors: make(map[string][]byte),
	}
}

func (f *fakePresence) AddMember(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error {
	f.adds = append(f.adds, fmt.Sprintf("%s:%d", docID, userID))
	return nil
}

func (f *fakePresence) GetDocuments(ctx context.Context) ([]string, error) {
	var docs []string
	for d := range f.members {
		docs = append(docs, d)
	}
	return docs, nil
}

func (f *fakePresence) GetAliveMembersWithNames(ctx context.Context, docID string) ([]cache.PresenceMember, error) {
	return f.members[docID], nil
}

func (f *fakePresence) SetCursor(ctx context.Context, docID string, userID uint64, jsonData []byte, ttl time.Duration) error {
	f.cursors[fmt.Sprintf("%s:%d", docID, userID)] = jsonData
	return nil
}

func (f *fakePresence) GetCursor(ctx context.Context, docID string, userID uint64) ([]byte, error) {
	return f.cursors[fmt.Sprintf("%s:%d", docID, userID)], nil
}

// 内存版文档存储，数写入次数
type memDocStore struct {
	doc    *store.Document
	writes int
}

func (m *memDocStore) Get(ctx context.Context, docID string) (*store.Document, error) {
	if m.doc == nil || m.doc.DocID != docID {
		return nil, store.ErrDocumentNotFound
	}
	cp := *m.doc
	return &cp, nil
}

func (m *memDocStore) UpdateContent(ctx context.Context, docID string, content string) (*store.Document, error) {
	if m.doc == nil || m.doc.DocID != docID {
		return nil, store.ErrDocumentNotFound
	}
	m.doc.Content = content
	m.doc.Version++
	m.writes++
	cp := *m.doc
	return &cp, nil
}

func ownedDoc() *store.Document {
	return &store.Document{DocID: "d-1", Title: "t", Content: "hello", OwnerID: 1, Version: 1}
}

func drain(c *Conn) []OutboundMessage {
	var out []OutboundMessage
	for {
		select {
		case m := <-c.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestConn_EnqueueAfterCloseIsDropped(t *testing.T) {
	c := NewConn(nil, NewHub(nil), 9, "tester", collab.NewRooms(), nil, nil, nil, nil)
	c.Enqueue(ServerMessage{Type: "feedback"})
	c.closeSend()
	// 断开之后迟到的入队必须被静默丢弃，而不是写已关闭的通道
	c.Enqueue(ServerMessage{Type: "save-error", Code: "NO_WRITE_PERMISSION"})
	c.closeSend() // 重复关闭也是安全的
}

// 扇出在锁外入队，与读循环退出并发；任意交错都不允许 panic
// （防抖保存失败的通知跑在 time.AfterFunc 的 goroutine 上，panic 会带崩整个进程）
func TestConn_ConcurrentNotifyAndDisconnect(t *testing.T) {
	for i := 0; i < 200; i++ {
		h := NewHub(nil)
		c := NewConn(nil, h, 9, "tester", collab.NewRooms(), nil, nil, nil, nil)
		h.Join("d-1", c)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				h.NotifyUser("d-1", 9, ServerMessage{Type: "save-error", Code: "SAVE_FAILED"})
			}
		}()
		go func() {
			defer wg.Done()
			// 读循环退出时的清理顺序
			h.RemoveConnection(c)
			c.closeSend()
		}()
		wg.Wait()
	}
}

// 显式保存后挂起的防抖计时器不能再落一份旧内容：
// 保存 "A" 之后文档经由其他路径更新到 "B"，计时器到点不应把 "A" 写回去
func TestConn_ExplicitSaveCancelsPendingAutosave(t *testing.T) {
	docs := &memDocStore{doc: ownedDoc()}
	svc := collab.NewService(docs, nil)
	saver := collab.NewAutosaver(svc, 50*time.Millisecond)
	defer saver.Close()
	rooms := collab.NewRooms()
	c := NewConn(nil, NewHub(newFakePresence()), 1, "alice", rooms, svc, saver, nil, nil)

	rooms.ApplyEdit("d-1", "A")
	saver.Touch("d-1", "A", 1)
	c.handleSave(context.Background(), ClientMessage{Type: "save-document", DocumentID: "d-1"})

	if docs.doc.Content != "A" {
		t.Fatalf("content after explicit save = %q, want %q", docs.doc.Content, "A")
	}
	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].MessageType() != "save-ok" {
		t.Fatalf("messages = %+v, want one save-ok", msgs)
	}

	// 另一条路径把文档推进到 "B"
	if _, err := svc.Save(context.Background(), "d-1", "B", 1); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if docs.doc.Content != "B" {
		t.Fatalf("content = %q after debounce window, stale autosave overwrote it", docs.doc.Content)
	}
}

// 加入房间时回放其他在线成员最近一次的光标位置
func TestConn_JoinReplaysCursors(t *testing.T) {
	fp := newFakePresence()
	fp.members["d-1"] = []cache.PresenceMember{{UserID: 1, Username: "alice"}, {UserID: 2, Username: "bob"}}
	fp.cursors["d-1:2"] = []byte(`{"index":7,"length":0}`)
	c := NewConn(nil, NewHub(fp), 1, "alice", collab.NewRooms(), nil, nil, nil, nil)

	c.handleJoin(context.Background(), ClientMessage{Type: "join-document", DocumentID: "d-1"})

	var cursors []CursorMessage
	for _, m := range drain(c) {
		if cm, ok := m.(CursorMessage); ok {
			cursors = append(cursors, cm)
		}
	}
	// 自己的光标不用回放，只该收到 bob 的
	if len(cursors) != 1 || cursors[0].UserID != 2 {
		t.Fatalf("cursor replays = %+v, want exactly bob's", cursors)
	}
}

func TestConn_ShowDocumentsListsActiveRooms(t *testing.T) {
	fp := newFakePresence()
	fp.members["d-1"] = []cache.PresenceMember{{UserID: 1}}
	c := NewConn(nil, NewHub(fp), 1, "alice", collab.NewRooms(), nil, nil, nil, nil)

	c.handleShowDocuments(context.Background())
	msgs := drain(c)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	got := msgs[0].(ServerMessage)
	if got.Type != "show-documents" || len(got.Documents) != 1 || got.Documents[0] != "d-1" {
		t.Fatalf("got %+v, want documents [d-1]", got)
	}
}

// 编辑和心跳都要续期在线 TTL，长时间只编辑不发心跳的连接不能从名单里消失
func TestConn_EditAndHeartbeatRefreshPresence(t *testing.T) {
	fp := newFakePresence()
	c := NewConn(nil, NewHub(fp), 1, "alice", collab.NewRooms(), nil, nil, nil, nil)
	ctx := context.Background()

	c.handleTextChange(ctx, ClientMessage{Type: "text-change", DocumentID: "d-1", Content: "x"})
	c.handleHeartbeat(ctx, ClientMessage{Type: "heartbeat", DocumentID: "d-1"})

	want := []string{"d-1:1", "d-1:1"}
	if len(fp.adds) != len(want) || fp.adds[0] != want[0] || fp.adds[1] != want[1] {
		t.Fatalf("presence refreshes = %v, want %v", fp.adds, want)
	}
}

// 保存失败对外只暴露错误码，原始错误文本（可能含内部细节）不外泄
func TestSaveErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{collab.ErrNoWritePermission, "NO_WRITE_PERMISSION"},
		{store.ErrDocumentNotFound, "DOCUMENT_NOT_FOUND"},
		{errors.New("disk full"), "SAVE_FAILED"},
	}
	for _, tc := range cases {
		if got := SaveErrorCode(tc.err); got != tc.want {
			t.Fatalf("SaveErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
