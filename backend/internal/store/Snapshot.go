package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// SnapshotStore 落库保存时顺带写一条快照，追加式，用于审计/回滚
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// EnsureSchema 建快照表；(document_id, version) 唯一键承载重复写入去重
// （users 表由外部认证服务建立和维护，这里不建）
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS document_snapshots (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			document_id VARCHAR(64) NOT NULL,
			version BIGINT UNSIGNED NOT NULL,
			content LONGTEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_document_version (document_id, version)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`)
	return err
}

func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, version, content)
		VALUES (?, ?, ?)`,
		docID,
		version,
		content,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		// 1062 = duplicate key，同一版本的快照已存在，视为成功
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}
