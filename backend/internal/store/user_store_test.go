package store

import (
	"context"
	"errors"
	"testing"
)

func TestUserStore_LookupRoundTrip(t *testing.T) {
	db := testMySQL(t)
	defer db.Close()
	ctx := context.Background()

	// users 表正常情况下由认证服务维护，测试里自己搭一张
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(64) NOT NULL UNIQUE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`); err != nil {
		t.Fatalf("create users table error: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, "store-test-alice")
	res, err := db.ExecContext(ctx, `INSERT INTO users (username) VALUES (?)`, "store-test-alice")
	if err != nil {
		t.Fatalf("insert user error: %v", err)
	}
	id, _ := res.LastInsertId()

	s := NewUserStore(db)
	gotID, err := s.GetUserID(ctx, "store-test-alice")
	if err != nil {
		t.Fatalf("GetUserID error: %v", err)
	}
	if gotID != uint64(id) {
		t.Fatalf("GetUserID = %d, want %d", gotID, id)
	}
	gotName, err := s.GetUsername(ctx, gotID)
	if err != nil {
		t.Fatalf("GetUsername error: %v", err)
	}
	if gotName != "store-test-alice" {
		t.Fatalf("GetUsername = %q, want %q", gotName, "store-test-alice")
	}

	if _, err := s.GetUserID(ctx, "store-test-nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetUserID unknown = %v, want ErrUserNotFound", err)
	}
	if _, err := s.GetUsername(ctx, 0); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetUsername unknown = %v, want ErrUserNotFound", err)
	}
}
