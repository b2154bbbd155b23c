// Package history maintains per-worker skill scores learned from completed
// tasks.
//
// The update rule is memoryless: each completion nudges the current score
// and no per-task history is kept. Aggregate counters are kept next to the
// score for monitoring only.
package history

import (
	"context"
	"fmt"

	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/keylock"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// Nudge bounds.
const (
	MaxOnTimeBonus = 5.0
	LatePenalty    = 2.0
	DefaultRating  = 5.0
)

// Store persists skill scores and counters.
type Store interface {
	// SkillScores returns the recorded scores; missing skills are absent.
	SkillScores(ctx context.Context, userID string) (model.SkillScoreSet, error)
	// AllSkillScores returns recorded scores of every worker.
	AllSkillScores(ctx context.Context) (map[string]model.SkillScoreSet, error)
	// ApplySkillUpdate writes the new score and increments counters atomically.
	ApplySkillUpdate(ctx context.Context, u model.SkillUpdate) error
	SkillStats(ctx context.Context, userID string, skill model.Skill) (model.SkillStats, error)
	// SeedSkills inserts score for every skill the worker has no row for.
	SeedSkills(ctx context.Context, userID string, skills []model.Skill, score float64) error
}

// Outcome describes one completed task.
type Outcome struct {
	OnTime bool
	// Rating is the reviewer's rating; nil counts as DefaultRating.
	Rating  *float64
	Minutes int
}

// Learner reads and updates skill scores.
type Learner struct {
	store   Store
	locks   *keylock.Locker
	log     logger.Logger
	metrics *metrics.Manager
}

// Option configures a Learner.
type Option func(*Learner)

// WithLocker shares a per-worker locker with other writers.
func WithLocker(l *keylock.Locker) Option {
	return func(h *Learner) {
		if l != nil {
			h.locks = l
		}
	}
}

// WithLogger sets the learner logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Learner) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMetrics records skill updates.
func WithMetrics(m *metrics.Manager) Option {
	return func(h *Learner) {
		h.metrics = m
	}
}

// NewLearner creates a Learner.
func NewLearner(store Store, opts ...Option) *Learner {
	h := &Learner{
		store: store,
		locks: keylock.New(),
		log:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Nudge applies the update rule to score and clamps the result.
func Nudge(score float64, o Outcome) float64 {
	if o.OnTime {
		rating := DefaultRating
		if o.Rating != nil {
			rating = max(0, *o.Rating)
		}
		score += min(MaxOnTimeBonus, rating)
	} else {
		score -= LatePenalty
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	switch {
	case v < model.MinSkillScore:
		return model.MinSkillScore
	case v > model.MaxSkillScore:
		return model.MaxSkillScore
	}
	return v
}

// GetSkillScores returns every skill's score for userID. Unseen skills and
// read failures fall back to the cold start score.
func (h *Learner) GetSkillScores(ctx context.Context, userID string) model.SkillScoreSet {
	out := model.ColdStartScores()
	recorded, err := h.store.SkillScores(ctx, userID)
	if err != nil {
		h.log.Warn(ctx, "skill read failed, using cold start scores",
			logger.String("user_id", userID), logger.Error(err))
		return out
	}
	for s, v := range recorded {
		if s.Valid() {
			out[s] = clamp(v)
		}
	}
	return out
}

// GetHistoryScore returns the normalized score of the skill kind maps to.
func (h *Learner) GetHistoryScore(ctx context.Context, userID string, kind model.TaskKind) float64 {
	return h.SkillScore(ctx, userID, kind.Skill())
}

// SkillScore returns the normalized score of skill in [0,1].
func (h *Learner) SkillScore(ctx context.Context, userID string, skill model.Skill) float64 {
	return h.GetSkillScores(ctx, userID).Get(skill) / model.MaxSkillScore
}

// RecordCompletion nudges the worker's score for kind's skill. Updates for
// the same worker are serialized.
func (h *Learner) RecordCompletion(ctx context.Context, userID string, kind model.TaskKind, o Outcome) (float64, error) {
	skill := kind.Skill()
	unlock := h.locks.Lock(userID)
	defer unlock()

	recorded, err := h.store.SkillScores(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("read skills of %s: %w", userID, err)
	}
	current, ok := recorded[skill]
	if !ok {
		current = model.ColdStartSkillScore
	}
	next := Nudge(clamp(current), o)

	err = h.store.ApplySkillUpdate(ctx, model.SkillUpdate{
		UserID:  userID,
		Skill:   skill,
		Score:   next,
		OnTime:  o.OnTime,
		Minutes: max(0, o.Minutes),
	})
	if err != nil {
		return 0, fmt.Errorf("update %s skill of %s: %w", skill, userID, err)
	}
	h.metrics.RecordSkillUpdate(string(skill), o.OnTime)
	h.log.Debug(ctx, "skill score updated",
		logger.String("user_id", userID),
		logger.String("skill", string(skill)),
		logger.Float64("from", current),
		logger.Float64("to", next))
	return next, nil
}

// GetAverageCompletionMinutes returns the mean minutes per completion, or 0.
func (h *Learner) GetAverageCompletionMinutes(ctx context.Context, userID string, skill model.Skill) (float64, error) {
	st, err := h.store.SkillStats(ctx, userID, skill)
	if err != nil {
		return 0, fmt.Errorf("skill stats of %s: %w", userID, err)
	}
	if st.Completions == 0 {
		return 0, nil
	}
	return float64(st.TotalMinutes) / float64(st.Completions), nil
}

// GetOnTimeRate returns the share of completions finished on time, or 0.
func (h *Learner) GetOnTimeRate(ctx context.Context, userID string, skill model.Skill) (float64, error) {
	st, err := h.store.SkillStats(ctx, userID, skill)
	if err != nil {
		return 0, fmt.Errorf("skill stats of %s: %w", userID, err)
	}
	if st.Completions == 0 {
		return 0, nil
	}
	return float64(st.OnTime) / float64(st.Completions), nil
}

// EnsureWorker seeds cold start rows for every skill of userID.
func (h *Learner) EnsureWorker(ctx context.Context, userID string) error {
	if err := h.store.SeedSkills(ctx, userID, model.Skills(), model.ColdStartSkillScore); err != nil {
		return fmt.Errorf("seed skills of %s: %w", userID, err)
	}
	return nil
}

// AllSkills returns full score sets for the given workers plus any worker
// with recorded scores.
func (h *Learner) AllSkills(ctx context.Context, userIDs []string) (map[string]model.SkillScoreSet, error) {
	recorded, err := h.store.AllSkillScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("all skills: %w", err)
	}
	out := make(map[string]model.SkillScoreSet, len(recorded)+len(userIDs))
	for _, id := range userIDs {
		out[id] = model.ColdStartScores()
	}
	for id, set := range recorded {
		full, ok := out[id]
		if !ok {
			full = model.ColdStartScores()
			out[id] = full
		}
		for s, v := range set {
			if s.Valid() {
				full[s] = clamp(v)
			}
		}
	}
	return out, nil
}
