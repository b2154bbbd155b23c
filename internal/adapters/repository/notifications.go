package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/autodist/internal/domain/model"
)

// CreateNotification appends a notification to the outbox.
func (s *Store) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.UserID == "" {
		return model.Notification{}, fmt.Errorf("%w: notification needs a user", ErrInvalidEntity)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO notifications
			(id, user_id, title, message, type, entity_type, entity_id, action_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.EntityType, n.EntityID,
		n.ActionURL, n.CreatedAt.UnixNano())
	if err != nil {
		return model.Notification{}, fmt.Errorf("insert notification for %s: %w", n.UserID, mapError(err))
	}
	return n, nil
}

// NotificationsForUser returns a user's notifications, newest first.
func (s *Store) NotificationsForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, user_id, title, message, type, entity_type, entity_id, action_url, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications of %s: %w", userID, mapError(err))
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n       model.Notification
			created int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type,
			&n.EntityType, &n.EntityID, &n.ActionURL, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
