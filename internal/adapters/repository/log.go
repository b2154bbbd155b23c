package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/autodist/internal/domain/model"
)

// DefaultLogLimit caps DistributionLog when the caller passes no limit.
const DefaultLogLimit = 100

// AppendLog writes one assignment audit row.
func (s *Store) AppendLog(ctx context.Context, e model.DistributionLogEntry) (model.DistributionLogEntry, error) {
	return s.appendLog(ctx, s.db, e)
}

func (s *Store) appendLog(ctx context.Context, db DBTX, e model.DistributionLogEntry) (model.DistributionLogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := db.ExecContext(ctx, s.q(`
		INSERT INTO distribution_log (id, task_id, assigned_to, method, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		e.ID, e.TaskID, e.AssignedTo, string(e.Method), e.CreatedAt.UnixNano())
	if err != nil {
		return model.DistributionLogEntry{}, fmt.Errorf("append log for task %s: %w", e.TaskID, mapError(err))
	}
	return e, nil
}

// DistributionLog returns the newest entries first.
func (s *Store) DistributionLog(ctx context.Context, limit int) ([]model.DistributionLogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, task_id, assigned_to, method, created_at FROM distribution_log
		ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query distribution log: %w", mapError(err))
	}
	defer rows.Close()

	var out []model.DistributionLogEntry
	for rows.Next() {
		var (
			e       model.DistributionLogEntry
			method  string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.AssignedTo, &method, &created); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Method = model.Method(method)
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distribution log: %w", err)
	}
	return out, nil
}

// Stats aggregates approval states, open tasks and assignments by method.
func (s *Store) Stats(ctx context.Context) (model.DistributionStats, error) {
	st := model.DistributionStats{Assignments: make(map[model.Method]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM distribution_approvals GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("count approvals: %w", mapError(err))
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("scan approval count: %w", err)
		}
		switch model.ApprovalStatus(status) {
		case model.ApprovalPending:
			st.PendingApprovals = n
		case model.ApprovalApproved:
			st.ApprovedApprovals = n
		case model.ApprovalRejected:
			st.RejectedApprovals = n
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return st, fmt.Errorf("iterate approval counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT method, COUNT(*) FROM distribution_log GROUP BY method`)
	if err != nil {
		return st, fmt.Errorf("count assignments: %w", mapError(err))
	}
	for rows.Next() {
		var (
			method string
			n      int
		)
		if err := rows.Scan(&method, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("scan assignment count: %w", err)
		}
		st.Assignments[model.Method(method)] = n
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return st, fmt.Errorf("iterate assignment counts: %w", err)
	}

	open, err := s.CountOpenTasks(ctx)
	if err != nil {
		return st, err
	}
	st.OpenTasks = open
	return st, nil
}
