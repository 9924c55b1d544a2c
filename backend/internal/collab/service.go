package collab

import (
	"context"
	"errors"
	"log"
	"strings"

	"docsync/backend/internal/store"
)

// 保存/加载路径的错误分类，ws 层和 http 层各自映射成响应
var (
	ErrNoWritePermission = errors.New("NO_WRITE_PERMISSION")
	ErrNoReadPermission  = errors.New("NO_READ_PERMISSION")
)

// Service 持久化调和器：把房间里的易失编辑落到持久存储
// 编辑（易失）和保存（持久）是解耦的两个阶段，保存失败不影响广播
type Service interface {
	// Save 权限校验 + 去重短路 + 落库；内容未变化时直接返回成功，不产生写入
	Save(ctx context.Context, docID string, content string, requestorID uint64) (*store.Document, error)
	// Load 带读权限校验的文档拉取，房间冷启动时客户端用它补状态
	Load(ctx context.Context, docID string, requestorID uint64) (*store.Document, error)
}

// 依赖的存储面，只声明需要的窄接口，具体实现在 store 包
type DocumentStore interface {
	Get(ctx context.Context, docID string) (*store.Document, error)
	UpdateContent(ctx context.Context, docID string, content string) (*store.Document, error)
}

type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error
}

type service struct {
	docs      DocumentStore
	snapshots SnapshotStore
}

func NewService(docs DocumentStore, snapshots SnapshotStore) Service {
	return &service{docs: docs, snapshots: snapshots}
}

func (s *service) Save(ctx context.Context, docID string, content string, requestorID uint64) (*store.Document, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.CanWrite(requestorID) {
		return nil, ErrNoWritePermission
	}

	// 防抖触发器可能重复投递同一份内容，trim 后相同就不再写库（幂等）
	if strings.TrimSpace(doc.Content) == strings.TrimSpace(content) {
		return doc, nil
	}

	updated, err := s.docs.UpdateContent(ctx, docID, content)
	if err != nil {
		return nil, err
	}

	// 快照是审计用途，失败不拖垮保存本身
	if s.snapshots != nil {
		if err := s.snapshots.SaveDocumentSnapshot(ctx, docID, updated.Version, updated.Content); err != nil {
			log.Printf("save snapshot failed doc=%s version=%d: %v", docID, updated.Version, err)
		}
	}
	return updated, nil
}

func (s *service) Load(ctx context.Context, docID string, requestorID uint64) (*store.Document, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.CanRead(requestorID) {
		return nil, ErrNoReadPermission
	}
	return doc, nil
}
