package collab

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"
)

// Autosaver 防抖保存：每次编辑都重置该文档的静默计时器，
// 静默期满才把“最后一份”内容交给 Service.Save 落库，
// 中间状态全部被合并掉（一阵连续敲击只产生一次写）
//
// 错误策略与显式保存不同：
// - 权限 / 文档不存在 / 服务端错误通过 OnError 通知发起编辑的用户
// - 网络类瞬时错误只打日志，不打扰用户，等下一轮防抖隐式重试
//   （没有退避、没有重试计数，这是已知的缺口）
type Autosaver struct {
	svc   Service
	quiet time.Duration

	// 非瞬时错误的回调（docID, 触发保存的用户, 错误）；可以为 nil
	OnError func(docID string, userID uint64, err error)

	mu      sync.Mutex
	pending map[string]*pendingSave
	closed  bool
}

type pendingSave struct {
	timer   *time.Timer
	content string
	userID  uint64
}

const DefaultQuietPeriod = 2000 * time.Millisecond

func NewAutosaver(svc Service, quiet time.Duration) *Autosaver {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Autosaver{
		svc:     svc,
		quiet:   quiet,
		pending: make(map[string]*pendingSave),
	}
}

// Touch 记录该文档最新的内容并重置计时器
// 同一文档先后多次 Touch，只有最后一次的内容会被持久化
func (a *Autosaver) Touch(docID string, content string, userID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if p, ok := a.pending[docID]; ok {
		p.content = content
		p.userID = userID
		p.timer.Reset(a.quiet)
		return
	}
	p := &pendingSave{content: content, userID: userID}
	p.timer = time.AfterFunc(a.quiet, func() { a.fire(docID) })
	a.pending[docID] = p
}

func (a *Autosaver) fire(docID string) {
	a.mu.Lock()
	p, ok := a.pending[docID]
	if ok {
		delete(a.pending, docID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.save(docID, p.content, p.userID)
}

func (a *Autosaver) save(docID string, content string, userID uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := a.svc.Save(ctx, docID, content, userID)
	if err == nil {
		return
	}
	if isTransient(err) {
		// 网络类瞬时错误：静默，靠下一轮防抖重试
		log.Printf("autosave failed doc=%s user=%d: %v", docID, userID, err)
		return
	}
	// 权限 / 不存在 / 服务端错误：通知发起编辑的用户
	if a.OnError != nil {
		a.OnError(docID, userID, err)
		return
	}
	log.Printf("autosave error doc=%s user=%d: %v", docID, userID, err)
}

// isTransient 判断是否网络类瞬时错误（连接断开、超时等）
func isTransient(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Flush 立即落库该文档的待保存内容；显式保存后调用，
// 防止挂起的计时器晚一步再落一份旧内容
func (a *Autosaver) Flush(docID string) {
	a.mu.Lock()
	p, ok := a.pending[docID]
	if ok {
		p.timer.Stop()
		delete(a.pending, docID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.save(docID, p.content, p.userID)
}

// Close 停掉所有计时器并把挂起的内容全部落库
func (a *Autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	drained := a.pending
	a.pending = make(map[string]*pendingSave)
	a.mu.Unlock()
	for docID, p := range drained {
		p.timer.Stop()
		a.save(docID, p.content, p.userID)
	}
}
