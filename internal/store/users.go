package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hirewave/notify/internal/model"
)

// GetUser looks up an account in the user directory read model.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, username, email, phone, avatar_key, status
		FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.DisplayName, &u.Username, &u.Email, &u.Phone, &u.AvatarKey, &u.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
