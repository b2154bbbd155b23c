package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/autodist/internal/domain/model"
)

// AttendanceAbsent marks a worker as away for a day.
const AttendanceAbsent = "absent"

// UpsertUser inserts or replaces a directory user.
func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidEntity)
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, full_name, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name,
			role = excluded.role,
			is_active = excluded.is_active`),
		u.ID, u.FullName, u.Role, boolInt(u.Active), s.stamp())
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, mapError(err))
	}
	return nil
}

// GetUser returns one user regardless of activity.
func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	var (
		u      model.User
		active int
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, full_name, role, is_active FROM users WHERE id = ?`), id).
		Scan(&u.ID, &u.FullName, &u.Role, &active)
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", id, mapError(err))
	}
	u.Active = active != 0
	return u, nil
}

// ActiveUsers lists active users ordered by id.
func (s *Store) ActiveUsers(ctx context.Context) ([]model.User, error) {
	return s.queryUsers(ctx, `
		SELECT id, full_name, role, is_active FROM users
		WHERE is_active = 1 ORDER BY id`)
}

// FirstActiveUserWithRole returns the lowest-id active user holding any of
// roles, or ErrNotFound.
func (s *Store) FirstActiveUserWithRole(ctx context.Context, roles []string) (model.User, error) {
	if len(roles) == 0 {
		return model.User{}, fmt.Errorf("find manager: %w", ErrNotFound)
	}
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = r
	}
	users, err := s.queryUsers(ctx, `
		SELECT id, full_name, role, is_active FROM users
		WHERE is_active = 1 AND role IN (`+placeholders(len(roles))+`)
		ORDER BY id LIMIT 1`, args...)
	if err != nil {
		return model.User{}, err
	}
	if len(users) == 0 {
		return model.User{}, fmt.Errorf("find manager: %w", ErrNotFound)
	}
	return users[0], nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", mapError(err))
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			u      model.User
			active int
		)
		if err := rows.Scan(&u.ID, &u.FullName, &u.Role, &active); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Active = active != 0
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// RecordAttendance stores a worker's attendance status for date.
func (s *Store) RecordAttendance(ctx context.Context, userID, date, status string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO attendance (user_id, date, status) VALUES (?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET status = excluded.status`),
		userID, date, status)
	if err != nil {
		return fmt.Errorf("record attendance %s/%s: %w", userID, date, mapError(err))
	}
	return nil
}

// RecordAbsence marks userID absent on date.
func (s *Store) RecordAbsence(ctx context.Context, userID, date string) error {
	return s.RecordAttendance(ctx, userID, date, AttendanceAbsent)
}

// AbsentUserIDs lists active users marked absent on date.
func (s *Store) AbsentUserIDs(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT a.user_id FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date = ? AND a.status = ? AND u.is_active = 1
		ORDER BY a.user_id`), date, AttendanceAbsent)
	if err != nil {
		return nil, fmt.Errorf("query absences: %w", mapError(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan absence: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate absences: %w", err)
	}
	return ids, nil
}
