// Package distconfig holds the process-wide, hot-reloadable distribution
// configuration read by the assignment engine and the workload balancer.
package distconfig

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
	"github.com/okian/autodist/pkg/metrics"
)

// Store persists the configuration. The bool reports whether a row existed.
type Store interface {
	LoadDistributionConfig(ctx context.Context) (model.DistributionConfig, bool, error)
	SaveDistributionConfig(ctx context.Context, cfg model.DistributionConfig) error
}

// Provider serves the current configuration. Readers never block.
type Provider struct {
	current atomic.Pointer[model.DistributionConfig]
	store   Store
	log     logger.Logger
	metrics *metrics.Manager
}

// Option configures a Provider.
type Option func(*Provider)

// WithStore persists changes made through Set and enables Load.
func WithStore(s Store) Option {
	return func(p *Provider) {
		p.store = s
	}
}

// WithInitial seeds the provider. Invalid values are ignored.
func WithInitial(cfg model.DistributionConfig) Option {
	return func(p *Provider) {
		if cfg.Validate() == nil {
			p.current.Store(&cfg)
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records config reloads.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

// New creates a Provider holding the default configuration unless
// WithInitial supplies another one.
func New(opts ...Option) *Provider {
	p := &Provider{log: logger.NewNop()}
	def := model.DefaultDistributionConfig()
	p.current.Store(&def)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns a copy of the current configuration.
func (p *Provider) Get() model.DistributionConfig {
	return *p.current.Load()
}

// Load replaces the current configuration with the persisted one, if any.
func (p *Provider) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	cfg, ok, err := p.store.LoadDistributionConfig(ctx)
	if err != nil {
		return fmt.Errorf("load distribution config: %w", err)
	}
	if !ok {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		p.log.Warn(ctx, "ignoring invalid persisted distribution config", logger.Error(err))
		return nil
	}
	p.current.Store(&cfg)
	return nil
}

// Set validates, persists and then publishes cfg.
func (p *Provider) Set(ctx context.Context, cfg model.DistributionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.SaveDistributionConfig(ctx, cfg); err != nil {
			return fmt.Errorf("save distribution config: %w", err)
		}
	}
	p.current.Store(&cfg)
	p.log.Info(ctx, "distribution config updated",
		logger.Float64("weight_skill", cfg.WeightSkill),
		logger.Float64("weight_workload", cfg.WeightWorkload),
		logger.Float64("max_utilization", cfg.MaxUtilization),
		logger.Float64("auto_assign_threshold", cfg.AutoAssignThreshold))
	return nil
}

// Apply publishes cfg without persisting it. It is used by file reloads.
func (p *Provider) Apply(ctx context.Context, cfg model.DistributionConfig) error {
	if err := cfg.Validate(); err != nil {
		p.metrics.RecordConfigReload(false)
		p.log.Warn(ctx, "rejected distribution config reload", logger.Error(err))
		return err
	}
	p.current.Store(&cfg)
	p.metrics.RecordConfigReload(true)
	p.log.Info(ctx, "distribution config reloaded")
	return nil
}
