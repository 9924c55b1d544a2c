package store

import (
	"context"
	"database/sql"
	"errors"
)

var ErrUserNotFound = errors.New("USER_NOT_FOUND")

type UserStore struct{ db *sql.DB }

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// GetUserID 协作者接口允许按用户名添加，这里负责解析成 id
func (s *UserStore) GetUserID(ctx context.Context, username string) (uint64, error) {
	var userID uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = ?`,
		username,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return userID, err
}

func (s *UserStore) GetUsername(ctx context.Context, userID uint64) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = ?`,
		userID,
	).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return username, err
}
