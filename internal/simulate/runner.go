package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/okian/autodist/internal/app"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

const (
	outputFilePermission = 0o600
	settlePollInterval   = 100 * time.Millisecond
	settleStablePolls    = 3
	maxLogEntries        = 1000
)

// Run registers staff, submits events concurrently, waits for the engine to
// settle and then collects what it decided.
func Run(ctx context.Context, cfg Config, log logger.Logger) (Report, error) {
	log = logger.OrNop(log).Named("simulate")
	if err := cfg.validate(); err != nil {
		return Report{}, err
	}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("events", cfg.Events),
		logger.Int("workers", cfg.Workers),
		logger.Int("staff", len(cfg.Staff)))

	if err := checkHealth(ctx, c); err != nil {
		return Report{}, err
	}
	if err := registerStaff(ctx, c, cfg.Staff, cfg.Absent); err != nil {
		return Report{}, err
	}

	events := newGenerator(cfg.Seed).Generate(cfg.Events, cfg.Duplicates)
	start := time.Now()
	stats := submitEvents(ctx, c, cfg.Workers, events, log)
	stats.Duration = time.Since(start)
	log.Info(ctx, "events submitted",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("backpressure", stats.Backpressure),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration))

	if cfg.Settle > 0 {
		if err := waitSettled(ctx, c, cfg.Settle); err != nil {
			log.Warn(ctx, "engine did not settle", logger.Error(err))
		}
	}

	report := Report{Stats: stats}
	if len(cfg.Absent) > 0 {
		var results []service.ReassignResult
		if _, err := c.do(ctx, http.MethodPost, "/absences/today/reassign", nil, &results); err != nil {
			return report, err
		}
		for _, r := range results {
			report.Reassigned += len(r.Reassigned)
		}
	}
	if err := collect(ctx, c, &report); err != nil {
		return report, err
	}
	if cfg.OutputFile != "" {
		if err := saveEvents(cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events", logger.String("file", cfg.OutputFile), logger.Error(err))
		}
	}

	log.Info(ctx, "simulation finished",
		logger.Int("pending_approvals", len(report.PendingApprovals)),
		logger.Int("log_entries", len(report.Log)),
		logger.Int("auto", report.ByMethod[model.MethodAuto]),
		logger.Int("approval", report.ByMethod[model.MethodApproval]),
		logger.Int("reassign", report.ByMethod[model.MethodReassign]),
		logger.Int("reassigned", report.Reassigned))
	return report, nil
}

func (c Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Events < 0:
		return fmt.Errorf("%w: events must not be negative", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Duplicates < 0 || c.Duplicates >= 1:
		return fmt.Errorf("%w: duplicates must be in [0,1)", ErrInvalidConfig)
	}
	return nil
}

func checkHealth(ctx context.Context, c *client) error {
	if _, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	return nil
}

func registerStaff(ctx context.Context, c *client, staff []model.User, absent []string) error {
	for _, u := range staff {
		body := map[string]any{"full_name": u.FullName, "role": u.Role, "active": u.Active}
		if _, err := c.do(ctx, http.MethodPut, "/users/"+u.ID, body, nil); err != nil {
			return fmt.Errorf("register %s: %w", u.ID, err)
		}
	}
	for _, id := range absent {
		if _, err := c.do(ctx, http.MethodPost, "/users/"+id+"/absences", nil, nil); err != nil {
			return fmt.Errorf("mark %s absent: %w", id, err)
		}
	}
	return nil
}

// submitEvents posts events from a fixed pool of workers.
func submitEvents(ctx context.Context, c *client, workers int, events []Event, log logger.Logger) Stats {
	var accepted, duplicate, backpressure, failed atomic.Int64

	ch := make(chan Event, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				var ack AckResponse
				status, err := c.do(ctx, http.MethodPost, "/events", ev, &ack)
				switch {
				case status == http.StatusTooManyRequests:
					backpressure.Add(1)
				case err != nil:
					failed.Add(1)
					log.Debug(ctx, "event rejected", logger.String("event_id", ev.EventID), logger.Error(err))
				case ack.Duplicate:
					duplicate.Add(1)
				default:
					accepted.Add(1)
				}
			}
		}()
	}

	sent := 0
feed:
	for _, ev := range events {
		select {
		case <-ctx.Done():
			break feed
		case ch <- ev:
			sent++
		}
	}
	close(ch)
	wg.Wait()

	return Stats{
		Submitted:    sent,
		Accepted:     int(accepted.Load()),
		Duplicate:    int(duplicate.Load()),
		Backpressure: int(backpressure.Load()),
		Failed:       int(failed.Load()),
	}
}

// waitSettled polls /stats until it stops changing or timeout passes.
func waitSettled(ctx context.Context, c *client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last model.DistributionStats
	stable := 0
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()
	for {
		var st model.DistributionStats
		if _, err := c.do(ctx, http.MethodGet, "/stats", nil, &st); err != nil {
			return err
		}
		if sameStats(st, last) {
			stable++
		} else {
			stable = 0
		}
		if stable >= settleStablePolls {
			return nil
		}
		last = st
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("still changing after %s", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func sameStats(a, b model.DistributionStats) bool {
	if a.PendingApprovals != b.PendingApprovals || a.OpenTasks != b.OpenTasks || len(a.Assignments) != len(b.Assignments) {
		return false
	}
	for k, v := range a.Assignments {
		if b.Assignments[k] != v {
			return false
		}
	}
	return true
}

func collect(ctx context.Context, c *client, r *Report) error {
	if _, err := c.do(ctx, http.MethodGet, "/approvals", nil, &r.PendingApprovals); err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodGet, "/distribution-log?limit="+strconv.Itoa(maxLogEntries), nil, &r.Log); err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodGet, "/workloads", nil, &r.Workloads); err != nil {
		return err
	}
	r.ByMethod = make(map[model.Method]int)
	r.ByWorker = make(map[string]int)
	for _, e := range r.Log {
		r.ByMethod[e.Method]++
		r.ByWorker[e.AssignedTo]++
	}
	return nil
}

func saveEvents(path string, events []Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	if err := os.WriteFile(path, data, outputFilePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
