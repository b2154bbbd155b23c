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

const approvalColumns = `id, task_def, suggested_user_id, suggested_score, status,
	approved_by, created_task_id, created_at, decided_at`

func scanApproval(r rowScanner) (model.AssignmentApproval, error) {
	var (
		a         model.AssignmentApproval
		def       string
		status    string
		createdAt int64
		decidedAt sql.NullInt64
	)
	err := r.Scan(&a.ID, &def, &a.SuggestedUserID, &a.SuggestedScore, &status,
		&a.ApprovedBy, &a.CreatedTaskID, &createdAt, &decidedAt)
	if err != nil {
		return model.AssignmentApproval{}, err
	}
	if err := json.Unmarshal([]byte(def), &a.TaskDefinition); err != nil {
		return model.AssignmentApproval{}, fmt.Errorf("decode task definition of %s: %w", a.ID, err)
	}
	a.Status = model.ApprovalStatus(status)
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.DecidedAt = fromNanos(decidedAt)
	return a, nil
}

// CreateApproval stores a pending approval. A missing id is generated.
func (s *Store) CreateApproval(ctx context.Context, a model.AssignmentApproval) (model.AssignmentApproval, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SuggestedUserID == "" {
		return model.AssignmentApproval{}, fmt.Errorf("%w: approval needs a suggested user", ErrInvalidEntity)
	}
	a.Status = model.ApprovalPending
	a.ApprovedBy = ""
	a.CreatedTaskID = ""
	a.DecidedAt = nil
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	def, err := json.Marshal(a.TaskDefinition)
	if err != nil {
		return model.AssignmentApproval{}, fmt.Errorf("encode task definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO distribution_approvals
			(id, task_title, task_title_localized, task_def, suggested_user_id,
			 suggested_score, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.TaskDefinition.Title, a.TaskDefinition.TitleLocalized, string(def),
		a.SuggestedUserID, a.SuggestedScore, string(a.Status), a.CreatedAt.UnixNano())
	if err != nil {
		return model.AssignmentApproval{}, fmt.Errorf("insert approval %s: %w", a.ID, mapError(err))
	}
	return a, nil
}

// GetApproval loads one approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (model.AssignmentApproval, error) {
	a, err := scanApproval(s.db.QueryRowContext(ctx, s.q(`
		SELECT `+approvalColumns+` FROM distribution_approvals WHERE id = ?`), id))
	if err != nil {
		return model.AssignmentApproval{}, fmt.Errorf("get approval %s: %w", id, mapError(err))
	}
	return a, nil
}

// PendingApprovals lists pending approvals, newest first.
func (s *Store) PendingApprovals(ctx context.Context) ([]model.AssignmentApproval, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+approvalColumns+` FROM distribution_approvals
		WHERE status = ? ORDER BY created_at DESC, id DESC`), string(model.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("query pending approvals: %w", mapError(err))
	}
	defer rows.Close()

	var out []model.AssignmentApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return out, nil
}

// ApproveAndCreate flips a pending approval to approved, creates its task and
// appends the log entry in one transaction. ErrNotPending means another
// decision won or the id is unknown; nothing is written in that case.
func (s *Store) ApproveAndCreate(ctx context.Context, approvalID, managerID string, t model.Task, entry model.DistributionLogEntry, decidedAt time.Time) (model.Task, error) {
	var created model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE distribution_approvals
			SET status = ?, approved_by = ?, created_task_id = ?, decided_at = ?
			WHERE id = ? AND status = ?`),
			string(model.ApprovalApproved), managerID, t.ID, decidedAt.UnixNano(),
			approvalID, string(model.ApprovalPending))
		if err != nil {
			return fmt.Errorf("approve %s: %w", approvalID, mapError(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("approve %s: %w", approvalID, err)
		}
		if n == 0 {
			return fmt.Errorf("approve %s: %w", approvalID, ErrNotPending)
		}
		created, err = s.insertTask(ctx, tx, t)
		if err != nil {
			return err
		}
		entry.TaskID = created.ID
		entry.AssignedTo = created.AssignedTo
		_, err = s.appendLog(ctx, tx, entry)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	return created, nil
}

// RejectApproval flips a pending approval to rejected and reports how many
// rows changed: 1 on success, 0 when it was not pending.
func (s *Store) RejectApproval(ctx context.Context, approvalID, managerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE distribution_approvals
		SET status = ?, approved_by = ?, decided_at = ?
		WHERE id = ? AND status = ?`),
		string(model.ApprovalRejected), managerID, s.stamp(),
		approvalID, string(model.ApprovalPending))
	if err != nil {
		return 0, fmt.Errorf("reject %s: %w", approvalID, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reject %s: %w", approvalID, err)
	}
	return n, nil
}
