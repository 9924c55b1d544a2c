package collab

import "sync"

// RoomState 某个文档房间的内存态：整篇内容 + 单调递增的广播计数器
// 进程内易失，不落库，进程重启即丢失
// 注意这里的 version 是房间本地的编辑事件计数，与 store.Document.Version（持久化版本）互相独立
type RoomState struct {
	Content string `json:"content"`
	Version uint64 `json:"version"`
}

// Rooms 全部文档房间状态的注册表
// 首次 join 或首次编辑时惰性创建；进程生命周期内不回收
//
// 原型是单线程事件循环，天然串行；Go 里每个连接一个 goroutine，
// 所以改用读写锁保证“更新内容 + 版本自增”对单个事件是原子的
type Rooms struct {
	mu     sync.RWMutex
	states map[string]*RoomState
}

func NewRooms() *Rooms {
	return &Rooms{states: make(map[string]*RoomState)}
}

// State 返回房间状态的副本；房间尚未创建时 ok 为 false
// （冷启动时 join 不下发状态，客户端走常规文档拉取接口）
func (r *Rooms) State(docID string) (RoomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[docID]
	if !ok {
		return RoomState{}, false
	}
	return *st, true
}

// ApplyEdit 整篇覆盖式应用一次编辑事件，返回自增后的版本号
// 不做 diff/merge/transform，后到的编辑完整覆盖先到的内容（last-write-wins）
// 房间不存在时先初始化为 {content:"", version:0} 再应用
func (r *Rooms) ApplyEdit(docID string, content string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[docID]
	if !ok {
		st = &RoomState{Content: "", Version: 0}
		r.states[docID] = st
	}
	st.Content = content
	st.Version++
	return st.Version
}
