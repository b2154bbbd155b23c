package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/autodist/internal/adapters/repository"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

// RegisterUser adds or updates a directory user. Active users get cold start
// skill rows immediately.
func (s *Service) RegisterUser(ctx context.Context, u model.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownUser)
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return fmt.Errorf("register user %s: %w", u.ID, err)
	}
	if u.Active {
		if err := s.learner.EnsureWorker(ctx, u.ID); err != nil {
			s.logger.Warn(ctx, "seeding skills failed", logger.String("user_id", u.ID), logger.Error(err))
		}
	}
	return nil
}

// MarkAbsent records userID as absent on date. An empty date means today.
func (s *Service) MarkAbsent(ctx context.Context, userID, date string) error {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return fmt.Errorf("mark %s absent: %w", userID, err)
	}
	if date == "" {
		date = s.balancer.Today()
	}
	if err := s.store.RecordAbsence(ctx, userID, date); err != nil {
		return fmt.Errorf("mark %s absent on %s: %w", userID, date, err)
	}
	return nil
}
