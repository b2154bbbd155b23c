package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/autodist/internal/domain/model"
)

// SkillScores returns the stored scores of one worker. Skills without a row
// are absent from the set.
func (s *Store) SkillScores(ctx context.Context, userID string) (model.SkillScoreSet, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT skill, score FROM employee_skills WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("query skills of %s: %w", userID, mapError(err))
	}
	defer rows.Close()

	set := make(model.SkillScoreSet)
	for rows.Next() {
		var (
			skill string
			score float64
		)
		if err := rows.Scan(&skill, &score); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		set[model.Skill(skill)] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skills: %w", err)
	}
	return set, nil
}

// AllSkillScores returns every stored score keyed by worker.
func (s *Store) AllSkillScores(ctx context.Context) (map[string]model.SkillScoreSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, skill, score FROM employee_skills ORDER BY user_id, skill`)
	if err != nil {
		return nil, fmt.Errorf("query all skills: %w", mapError(err))
	}
	defer rows.Close()

	out := make(map[string]model.SkillScoreSet)
	for rows.Next() {
		var (
			userID, skill string
			score         float64
		)
		if err := rows.Scan(&userID, &skill, &score); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		set, ok := out[userID]
		if !ok {
			set = make(model.SkillScoreSet)
			out[userID] = set
		}
		set[model.Skill(skill)] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skills: %w", err)
	}
	return out, nil
}

// ApplySkillUpdate writes the new score and bumps the completion counters in
// a single statement.
func (s *Store) ApplySkillUpdate(ctx context.Context, u model.SkillUpdate) error {
	onTime := boolInt(u.OnTime)
	minutes := u.Minutes
	if minutes < 0 {
		minutes = 0
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO employee_skills (user_id, skill, score, completions, on_time, total_minutes, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (user_id, skill) DO UPDATE SET
			score = excluded.score,
			completions = employee_skills.completions + 1,
			on_time = employee_skills.on_time + excluded.on_time,
			total_minutes = employee_skills.total_minutes + excluded.total_minutes,
			updated_at = excluded.updated_at`),
		u.UserID, string(u.Skill), u.Score, onTime, minutes, s.stamp())
	if err != nil {
		return fmt.Errorf("update skill %s/%s: %w", u.UserID, u.Skill, mapError(err))
	}
	return nil
}

// SkillStats returns the completion counters of one worker and skill. A
// missing row reports zero counters.
func (s *Store) SkillStats(ctx context.Context, userID string, skill model.Skill) (model.SkillStats, error) {
	var st model.SkillStats
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT completions, on_time, total_minutes FROM employee_skills
		WHERE user_id = ? AND skill = ?`), userID, string(skill)).
		Scan(&st.Completions, &st.OnTime, &st.TotalMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SkillStats{}, nil
	}
	if err != nil {
		return model.SkillStats{}, fmt.Errorf("skill stats %s/%s: %w", userID, skill, mapError(err))
	}
	return st, nil
}

// SeedSkills inserts score for each skill the worker has no row for yet.
func (s *Store) SeedSkills(ctx context.Context, userID string, skills []model.Skill, score float64) error {
	if len(skills) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		for _, sk := range skills {
			_, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO employee_skills (user_id, skill, score, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (user_id, skill) DO NOTHING`),
				userID, string(sk), score, now)
			if err != nil {
				return fmt.Errorf("seed skill %s/%s: %w", userID, sk, mapError(err))
			}
		}
		return nil
	})
}
