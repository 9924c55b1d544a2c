package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrDocumentNotFound     = errors.New("DOCUMENT_NOT_FOUND")
	ErrCollaboratorNotFound = errors.New("COLLABORATOR_NOT_FOUND")
)

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Get 返回文档及其协作者列表；权限判断交给调用方（entity 上的 CanRead/CanWrite）
func (s *DocumentStore) Get(ctx context.Context, docID string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Preload("Collaborators").
		Where("doc_id = ?", docID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) Create(ctx context.Context, doc *Document) error {
	now := time.Now()
	doc.LastModified = now
	doc.CreatedAt = now
	return s.db.WithContext(ctx).Create(doc).Error
}

// ListForUser 用户可见的文档：自己拥有的、被加为协作者的、公开的
func (s *DocumentStore) ListForUser(ctx context.Context, userID uint64) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).Preload("Collaborators").
		Where("owner_id = ? OR is_public = ? OR doc_id IN (?)",
			userID, true,
			s.db.Model(&DocumentCollaborator{}).Select("doc_id").Where("user_id = ?", userID),
		).
		Order("last_modified DESC").
		Find(&docs).Error
	return docs, err
}

func (s *DocumentStore) ListPublic(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).Preload("Collaborators").
		Where("is_public = ?", true).
		Order("last_modified DESC").
		Find(&docs).Error
	return docs, err
}

// UpdateContent 落库保存：内容整体覆盖，持久化版本 +1，刷新 lastModified
// 注意：这里没有应用层事务包住“读-比较-写”，并发保存以后写完成者为准
func (s *DocumentStore) UpdateContent(ctx context.Context, docID string, content string) (*Document, error) {
	res := s.db.WithContext(ctx).Model(&Document{}).
		Where("doc_id = ?", docID).
		Updates(map[string]interface{}{
			"content":       content,
			"version":       gorm.Expr("version + 1"),
			"last_modified": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDocumentNotFound
	}
	return s.Get(ctx, docID)
}

// UpdateMeta 更新元信息（title / isPublic），不动内容和版本号
func (s *DocumentStore) UpdateMeta(ctx context.Context, docID string, fields map[string]interface{}) (*Document, error) {
	if len(fields) > 0 {
		fields["last_modified"] = time.Now()
		res := s.db.WithContext(ctx).Model(&Document{}).
			Where("doc_id = ?", docID).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrDocumentNotFound
		}
	}
	return s.Get(ctx, docID)
}

func (s *DocumentStore) Delete(ctx context.Context, docID string) error {
	res := s.db.WithContext(ctx).Where("doc_id = ?", docID).Delete(&Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// AddCollaborator 重复添加时更新权限（save 语义），拥有者不应被加进来，由 handler 拦截
func (s *DocumentStore) AddCollaborator(ctx context.Context, docID string, userID uint64, permission string) error {
	collab := DocumentCollaborator{
		DocID:      docID,
		UserID:     userID,
		Permission: permission,
		AddedAt:    time.Now(),
	}
	return s.db.WithContext(ctx).Save(&collab).Error
}

func (s *DocumentStore) RemoveCollaborator(ctx context.Context, docID string, userID uint64) error {
	res := s.db.WithContext(ctx).
		Where("doc_id = ? AND user_id = ?", docID, userID).
		Delete(&DocumentCollaborator{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCollaboratorNotFound
	}
	return nil
}
