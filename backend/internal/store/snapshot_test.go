package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
)

func testMySQL(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		dsn = "root:@tcp(127.0.0.1:3306)/docsync_test?charset=utf8mb4&parseTime=True"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("skip: mysql open failed: %v", err)
	}
	// 若 MySQL 未启动则跳过
	if err := db.Ping(); err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	return db
}

func TestSnapshotStore_EnsureSchemaAndDuplicateInsert(t *testing.T) {
	db := testMySQL(t)
	defer db.Close()
	ctx := context.Background()

	s := NewSnapshotStore(db)
	// 建表是幂等的，冷库第一次启动也能直接写快照
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema (again) error: %v", err)
	}

	defer db.ExecContext(ctx, `DELETE FROM document_snapshots WHERE document_id = ?`, "d-snap-test")

	if err := s.SaveDocumentSnapshot(ctx, "d-snap-test", 1, "hello"); err != nil {
		t.Fatalf("SaveDocumentSnapshot error: %v", err)
	}
	// 同一 (document_id, version) 的重复写入命中唯一键，视为成功
	if err := s.SaveDocumentSnapshot(ctx, "d-snap-test", 1, "hello"); err != nil {
		t.Fatalf("duplicate SaveDocumentSnapshot error: %v", err)
	}
}
