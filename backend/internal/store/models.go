package store

import "time"

// 协作者权限等级，与 documents 路由的鉴权规则对应
// read: 只能查看；write: 可以编辑并触发持久化保存
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

type Document struct {
	DocID   string `gorm:"primaryKey;type:varchar(64)" json:"docId"`
	Title   string `gorm:"type:varchar(100);not null" json:"title"`
	Content string `gorm:"type:longtext" json:"content"`
	OwnerID uint64 `gorm:"not null;index" json:"ownerId"`
	// 公开文档任何登录用户都可以读取
	IsPublic bool `gorm:"default:false" json:"isPublic"`
	// 持久化版本号，每次落库保存 +1（与房间内的广播计数器互相独立）
	Version      uint64    `gorm:"default:0" json:"version"`
	LastModified time.Time `json:"lastModified"`
	CreatedAt    time.Time `json:"createdAt"`

	Collaborators []DocumentCollaborator `gorm:"foreignKey:DocID;constraint:OnDelete:CASCADE" json:"collaborators"`
}

type DocumentCollaborator struct {
	DocID      string    `gorm:"primaryKey;type:varchar(64)" json:"docId"`
	UserID     uint64    `gorm:"primaryKey" json:"userId"`
	Permission string    `gorm:"type:varchar(8);not null;default:read" json:"permissions"`
	AddedAt    time.Time `json:"addedAt"`
}

// IsOwner 拥有者隐含全部权限，且永远不会出现在协作者列表里
func (d *Document) IsOwner(userID uint64) bool {
	return d.OwnerID == userID
}

// CanRead 拥有者 / 任意协作者 / 公开文档
func (d *Document) CanRead(userID uint64) bool {
	if d.IsOwner(userID) || d.IsPublic {
		return true
	}
	for _, c := range d.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// CanWrite 拥有者或 write 权限的协作者；read 协作者只能查看，不能保存
func (d *Document) CanWrite(userID uint64) bool {
	if d.IsOwner(userID) {
		return true
	}
	for _, c := range d.Collaborators {
		if c.UserID == userID && c.Permission == PermissionWrite {
			return true
		}
	}
	return false
}
