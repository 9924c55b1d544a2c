package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docsync/backend/internal/collab"
	"docsync/backend/internal/store"
)

// DocumentHandlers 文档的 CRUD 和协作者管理
// 内容保存统一走 collab.Service（持久化调和器），
// 元信息（标题/可见性）直接走 store
type DocumentHandlers struct {
	docs  *store.DocumentStore
	users *store.UserStore
	svc   collab.Service
}

func NewDocumentHandlers(docs *store.DocumentStore, users *store.UserStore, svc collab.Service) *DocumentHandlers {
	return &DocumentHandlers{docs: docs, users: users, svc: svc}
}

// Register 挂到带鉴权中间件的路由组上
func (h *DocumentHandlers) Register(rg *gin.RouterGroup) {
	rg.GET("/documents", h.List)
	rg.GET("/documents/public", h.ListPublic)
	rg.POST("/documents", h.Create)
	rg.GET("/documents/:id", h.Get)
	rg.PUT("/documents/:id", h.Update)
	rg.DELETE("/documents/:id", h.Delete)
	rg.POST("/documents/:id/collaborators", h.AddCollaborator)
	rg.DELETE("/documents/:id/collaborators/:userId", h.RemoveCollaborator)
}

func currentUser(c *gin.Context) (uint64, bool) {
	userID := c.GetUint64("userId")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "user context missing"})
		return 0, false
	}
	return userID, true
}

// List 当前用户可见的文档：自己的、被共享的、公开的
func (h *DocumentHandlers) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	docs, err := h.docs.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandlers) ListPublic(c *gin.Context) {
	docs, err := h.docs.ListPublic(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type createDocumentReq struct {
	Title    string `json:"title" binding:"required,max=100"`
	Content  string `json:"content"`
	IsPublic *bool  `json:"isPublic"`
}

func (h *DocumentHandlers) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title is required"})
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	doc := &store.Document{
		DocID:    fmt.Sprintf("d-%d", time.Now().UnixNano()),
		Title:    strings.TrimSpace(req.Title),
		Content:  req.Content,
		OwnerID:  userID,
		IsPublic: isPublic,
	}
	if err := h.docs.Create(c.Request.Context(), doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Document created successfully", "document": doc})
}

func (h *DocumentHandlers) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	doc, err := h.svc.Load(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDocumentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Document not found"})
		case errors.Is(err, collab.ErrNoReadPermission):
			c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

type updateDocumentReq struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	IsPublic *bool   `json:"isPublic"`
}

// Update 部分更新 {title?, content?, isPublic?}
// content 走持久化调和器（权限校验 + 未变化短路 + 版本自增）；
// title/isPublic 同样要求 owner 或 write 协作者
func (h *DocumentHandlers) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req updateDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "details": err.Error()})
		return
	}
	if req.Title != nil && (strings.TrimSpace(*req.Title) == "" || len(*req.Title) > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title must be 1-100 characters"})
		return
	}
	docID := c.Param("id")
	ctx := c.Request.Context()

	doc, err := h.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if !doc.CanWrite(userID) {
		c.JSON(http.StatusForbidden, gin.H{"message": "No write permission"})
		return
	}

	if req.Content != nil {
		if doc, err = h.svc.Save(ctx, docID, *req.Content, userID); err != nil {
			// 权限刚检查过，这里的失败按服务端错误处理
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = strings.TrimSpace(*req.Title)
	}
	if req.IsPublic != nil {
		fields["is_public"] = *req.IsPublic
	}
	if len(fields) > 0 {
		if doc, err = h.docs.UpdateMeta(ctx, docID, fields); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Document updated successfully", "document": doc})
}

// Delete 仅拥有者可删除
func (h *DocumentHandlers) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	docID := c.Param("id")
	ctx := c.Request.Context()

	doc, err := h.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if !doc.IsOwner(userID) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only owner can delete document"})
		return
	}
	if err := h.docs.Delete(ctx, docID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

type addCollaboratorReq struct {
	UserID      uint64 `json:"userId"`
	Username    string `json:"username"`
	Permissions string `json:"permissions" binding:"required,oneof=read write"`
}

// AddCollaborator 仅拥有者可管理协作者；支持 userId 或 username 二选一
func (h *DocumentHandlers) AddCollaborator(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req addCollaboratorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Permissions must be read or write"})
		return
	}
	docID := c.Param("id")
	ctx := c.Request.Context()

	doc, err := h.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if !doc.IsOwner(userID) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only owner can manage collaborators"})
		return
	}

	collaboratorID := req.UserID
	if collaboratorID == 0 && req.Username != "" {
		collaboratorID, err = h.users.GetUserID(ctx, req.Username)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
	} else if collaboratorID != 0 {
		// 按 id 添加时也要确认用户存在，避免把幽灵 id 写进协作者表
		if _, err := h.users.GetUsername(ctx, collaboratorID); err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
	}
	if collaboratorID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User ID is required"})
		return
	}
	// 拥有者隐含全部权限，不进协作者列表
	if collaboratorID == doc.OwnerID {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Owner is already a collaborator"})
		return
	}

	if err := h.docs.AddCollaborator(ctx, docID, collaboratorID, req.Permissions); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collaborator added successfully"})
}

func (h *DocumentHandlers) RemoveCollaborator(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	docID := c.Param("id")
	collaboratorID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid user ID"})
		return
	}
	ctx := c.Request.Context()

	doc, err := h.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if !doc.IsOwner(userID) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only owner can manage collaborators"})
		return
	}

	if err := h.docs.RemoveCollaborator(ctx, docID, collaboratorID); err != nil {
		if errors.Is(err, store.ErrCollaboratorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Collaborator not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	// 已经加入房间的连接不会因为被移除协作者而停收广播——
	// 房间成员资格是连接级的，权限不会按事件重查（当前行为，非安全保证）
	c.JSON(http.StatusOK, gin.H{"message": "Collaborator removed successfully"})
}
