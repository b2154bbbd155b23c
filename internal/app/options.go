package service

import (
	"time"

	"github.com/okian/autodist/internal/adapters/mq/bus"
	"github.com/okian/autodist/internal/domain/distconfig"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics manager shared by every component.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBus subscribes the service to every event on b while it runs.
func WithBus(b *bus.Bus) Option {
	return func(s *Service) {
		s.bus = b
	}
}

// WithConfigProvider shares a hot-reloadable distribution config.
func WithConfigProvider(p *distconfig.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.config = p
		}
	}
}

// WithWorkdayMinutes sets the per-worker daily capacity.
func WithWorkdayMinutes(m int) Option {
	return func(s *Service) {
		if m > 0 {
			s.workdayMinutes = m
		}
	}
}

// WithExcludeAbsent drops workers absent today from candidate lists.
func WithExcludeAbsent(v bool) Option {
	return func(s *Service) {
		s.excludeAbsent = v
	}
}

// WithManagerRoles sets the roles whose first active holder receives
// approval and reassignment notifications.
func WithManagerRoles(roles ...string) Option {
	return func(s *Service) {
		if len(roles) > 0 {
			s.managerRoles = roles
		}
	}
}

// WithMaxRetries bounds how many further candidates are tried when the chosen
// worker fails the eligibility re-check.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithSeedOnStart controls cold start skill seeding for active users.
func WithSeedOnStart(v bool) Option {
	return func(s *Service) {
		s.seedOnStart = v
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
