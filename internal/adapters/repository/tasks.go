package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/autodist/internal/domain/model"
)

const taskColumns = `id, title, description, assigned_to, created_by, priority, status,
	category, source, source_reference, estimated_minutes, due_at, started_at,
	completed_at, rating, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (model.Task, error) {
	var (
		t                          model.Task
		ref                        string
		due, started, completed    sql.NullInt64
		rating                     sql.NullFloat64
		createdAt, updatedAt       int64
		priority, status, category string
	)
	err := r.Scan(&t.ID, &t.Title, &t.Description, &t.AssignedTo, &t.CreatedBy,
		&priority, &status, &category, &t.Source, &ref, &t.EstimatedMinutes,
		&due, &started, &completed, &rating, &createdAt, &updatedAt)
	if err != nil {
		return model.Task{}, err
	}
	t.Priority = model.Priority(priority)
	t.Status = model.TaskStatus(status)
	t.Category = model.TaskKind(category)
	if ref != "" {
		if err := json.Unmarshal([]byte(ref), &t.SourceReference); err != nil {
			return model.Task{}, fmt.Errorf("decode source reference of %s: %w", t.ID, err)
		}
	}
	t.DueAt = fromNanos(due)
	t.StartedAt = fromNanos(started)
	t.CompletedAt = fromNanos(completed)
	t.Rating = fromNullFloat(rating)
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	t.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return t, nil
}

// OpenTasksByUser lists the pending and in-progress tasks assigned to userID.
func (s *Store) OpenTasksByUser(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+taskColumns+` FROM tasks
		WHERE assigned_to = ? AND status IN (?, ?)
		ORDER BY created_at, id`),
		userID, string(model.TaskPending), string(model.TaskInProgress))
	if err != nil {
		return nil, fmt.Errorf("query open tasks of %s: %w", userID, mapError(err))
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// CountOpenTasks counts tasks that are not completed or cancelled.
func (s *Store) CountOpenTasks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM tasks WHERE status IN (?, ?)`),
		string(model.TaskPending), string(model.TaskInProgress)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open tasks: %w", mapError(err))
	}
	return n, nil
}

// GetTask loads one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, s.q(`
		SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id))
	if err != nil {
		return model.Task{}, fmt.Errorf("get task %s: %w", id, mapError(err))
	}
	return t, nil
}

// CreateTask inserts a task. A missing id is generated and returned.
func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	return s.insertTask(ctx, s.db, t)
}

// CreateAssignedTask inserts the task and its distribution log entry in one
// transaction.
func (s *Store) CreateAssignedTask(ctx context.Context, t model.Task, entry model.DistributionLogEntry) (model.Task, error) {
	var created model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.insertTask(ctx, tx, t)
		if err != nil {
			return err
		}
		entry.TaskID = created.ID
		if entry.AssignedTo == "" {
			entry.AssignedTo = created.AssignedTo
		}
		_, err = s.appendLog(ctx, tx, entry)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	return created, nil
}

func (s *Store) insertTask(ctx context.Context, db DBTX, t model.Task) (model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Title == "" {
		return model.Task{}, fmt.Errorf("%w: task title is required", ErrInvalidEntity)
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.Priority == "" {
		t.Priority = model.PriorityNormal
	}
	if t.EstimatedMinutes <= 0 {
		t.EstimatedMinutes = model.DefaultEstimatedMinutes
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	ref, err := json.Marshal(t.SourceReference)
	if err != nil {
		return model.Task{}, fmt.Errorf("encode source reference: %w", err)
	}
	_, err = db.ExecContext(ctx, s.q(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.Title, t.Description, t.AssignedTo, t.CreatedBy,
		string(t.Priority), string(t.Status), string(t.Category), t.Source, string(ref),
		t.EstimatedMinutes, nanos(t.DueAt), nanos(t.StartedAt), nanos(t.CompletedAt),
		nullFloat(t.Rating), t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
	if err != nil {
		return model.Task{}, fmt.Errorf("insert task %s: %w", t.ID, mapError(err))
	}
	return t, nil
}

// ReassignTask moves an open task from one assignee to another and logs the
// move. ErrConflict means the task was closed or moved in the meantime.
func (s *Store) ReassignTask(ctx context.Context, taskID, fromUserID, toUserID string, entry model.DistributionLogEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE tasks SET assigned_to = ?, updated_at = ?
			WHERE id = ? AND assigned_to = ? AND status IN (?, ?)`),
			toUserID, s.stamp(), taskID, fromUserID,
			string(model.TaskPending), string(model.TaskInProgress))
		if err != nil {
			return fmt.Errorf("reassign task %s: %w", taskID, mapError(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reassign task %s: %w", taskID, err)
		}
		if n == 0 {
			return fmt.Errorf("reassign task %s: %w", taskID, ErrConflict)
		}
		entry.TaskID = taskID
		entry.AssignedTo = toUserID
		_, err = s.appendLog(ctx, tx, entry)
		return err
	})
}

// StartTask marks a pending task in progress.
func (s *Store) StartTask(ctx context.Context, taskID string, startedAt time.Time) error {
	return s.transition(ctx, taskID, `
		UPDATE tasks SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(model.TaskInProgress), startedAt.UnixNano(), s.stamp(), taskID, string(model.TaskPending))
}

// CompleteTask closes an open task, recording when it finished and an
// optional rating.
func (s *Store) CompleteTask(ctx context.Context, taskID string, completedAt time.Time, rating *float64) error {
	return s.transition(ctx, taskID, `
		UPDATE tasks SET status = ?, completed_at = ?, rating = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(model.TaskCompleted), completedAt.UnixNano(), nullFloat(rating), s.stamp(),
		taskID, string(model.TaskPending), string(model.TaskInProgress))
}

// transition runs a guarded status update. Zero affected rows is ErrNotFound
// when the task does not exist and ErrConflict otherwise.
func (s *Store) transition(ctx context.Context, taskID, query string, args ...any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(query), args...)
		if err != nil {
			return fmt.Errorf("update task %s: %w", taskID, mapError(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task %s: %w", taskID, err)
		}
		if n > 0 {
			return nil
		}
		var exists int
		err = tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM tasks WHERE id = ?`), taskID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("update task %s: %w", taskID, mapError(err))
		}
		if exists == 0 {
			return fmt.Errorf("update task %s: %w", taskID, ErrNotFound)
		}
		return fmt.Errorf("update task %s: %w", taskID, ErrConflict)
	})
}
