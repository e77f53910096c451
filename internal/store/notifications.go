package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hirewave/notify/internal/model"
)

// NotificationWithActor pairs a record with its resolved actor row, when one
// exists. Actor is nil for system notifications and deleted accounts.
type NotificationWithActor struct {
	Notification model.Notification
	Actor        *model.User
}

// CreateNotification inserts a new record, filling in id and created_at.
func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, type, title, body, data, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.RecipientID, n.ActorID, n.Type, n.Title, n.Body, data, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

const listColumns = `
	n.id, n.recipient_id, n.actor_id, n.type, n.title, n.body, n.data, n.is_read, n.created_at,
	u.id, u.display_name, u.username, u.email, u.phone, u.avatar_key, u.status`

// ListNotifications returns one page of a user's notifications, newest first.
// A nil cursor starts from the top; the returned cursor is nil on the last page.
func (s *Store) ListNotifications(ctx context.Context, userID string, cursor *string, limit int) ([]NotificationWithActor, *string, error) {
	query := `
		SELECT ` + listColumns + `
		FROM notifications n
		LEFT JOIN users u ON u.id = n.actor_id
		WHERE n.recipient_id = $1`
	args := []any{userID}

	if cursor != nil {
		createdAt, id, err := DecodeCursor(*cursor)
		if err != nil {
			return nil, nil, err
		}
		query += ` AND (n.created_at, n.id) < ($2, $3)`
		args = append(args, createdAt, id)
	}

	query += fmt.Sprintf(` ORDER BY n.created_at DESC, n.id DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []NotificationWithActor
	for rows.Next() {
		var (
			n    model.Notification
			data []byte

			actorID     *string
			displayName *string
			username    *string
			email       *string
			phone       *string
			avatarKey   *string
			status      *string
		)
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.ActorID, &n.Type, &n.Title, &n.Body, &data, &n.IsRead, &n.CreatedAt,
			&actorID, &displayName, &username, &email, &phone, &avatarKey, &status,
		); err != nil {
			return nil, nil, fmt.Errorf("scan notification: %w", err)
		}

		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, nil, fmt.Errorf("unmarshal notification data: %w", err)
			}
		}

		row := NotificationWithActor{Notification: n}
		if actorID != nil {
			row.Actor = &model.User{
				ID:          *actorID,
				DisplayName: deref(displayName),
				Username:    deref(username),
				Email:       deref(email),
				Phone:       deref(phone),
				AvatarKey:   deref(avatarKey),
				Status:      deref(status),
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list notifications: %w", err)
	}

	var next *string
	if len(out) == limit {
		last := out[len(out)-1].Notification
		c := EncodeCursor(last.CreatedAt, last.ID)
		next = &c
	}

	return out, next, nil
}

// MarkRead flags the given ids read for a user. Ids belonging to other users
// are ignored. Returns the remaining unread count.
func (s *Store) MarkRead(ctx context.Context, userID string, ids []uuid.UUID) (int, error) {
	if len(ids) > 0 {
		_, err := s.pool.Exec(ctx, `
			UPDATE notifications SET is_read = TRUE
			WHERE recipient_id = $1 AND id = ANY($2) AND NOT is_read`,
			userID, ids,
		)
		if err != nil {
			return 0, fmt.Errorf("mark read: %w", err)
		}
	}
	return s.UnreadCount(ctx, userID)
}

// MarkAllRead flags every unread notification of a user read and returns the
// new unread count (always zero on success).
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE recipient_id = $1 AND NOT is_read`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return s.UnreadCount(ctx, userID)
}

// UnreadCount returns the number of unread notifications for a user.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE recipient_id = $1 AND NOT is_read`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
