package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hirewave/notify/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// GetTemplate returns the message template for a notification type.
func (s *Store) GetTemplate(ctx context.Context, typ model.NotificationType) (*model.Template, error) {
	var t model.Template
	err := s.pool.QueryRow(ctx, `
		SELECT type, title, body, enabled FROM notification_templates
		WHERE type = $1`,
		typ,
	).Scan(&t.Type, &t.Title, &t.Body, &t.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}
