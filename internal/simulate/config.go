// Package simulate drives a running autodist server with synthetic business
// events and summarises how the engine distributed the resulting work.
package simulate

import (
	"time"

	"github.com/okian/autodist/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // base URL of the service
	Events     int           // number of events to submit
	Workers    int           // concurrent submitters
	Timeout    time.Duration // per request timeout
	Settle     time.Duration // how long to wait for the bus to drain
	Seed       uint64        // generator seed; equal seeds give equal runs
	Duplicates float64       // share of events re-submitted with the same id

	// Staff, when non-empty, is registered before any event is sent.
	Staff []model.User
	// Absent workers are marked absent today and reassigned after the run.
	Absent []string

	OutputFile string // optional JSON dump of the submitted events
}

// Event is one submitted business event.
type Event struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Payload model.Payload `json:"payload"`
}

// AckResponse is the body returned by POST /events.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"event_id"`
}

// Stats holds submission counters.
type Stats struct {
	Submitted    int
	Accepted     int
	Duplicate    int
	Backpressure int
	Failed       int
	Duration     time.Duration
}

// Report is the outcome of a run.
type Report struct {
	Stats            Stats                        `json:"stats"`
	PendingApprovals []model.AssignmentApproval   `json:"pending_approvals"`
	Log              []model.DistributionLogEntry `json:"distribution_log"`
	Workloads        []model.WorkloadSnapshot     `json:"workloads"`
	Reassigned       int                          `json:"reassigned"`
	ByMethod         map[model.Method]int         `json:"by_method"`
	ByWorker         map[string]int               `json:"by_worker"`
}

// DefaultStaff is a small shop: one admin and five workers.
func DefaultStaff() []model.User {
	return []model.User{
		{ID: "admin", FullName: "Store Admin", Role: "admin", Active: true},
		{ID: "w1", FullName: "Worker 1", Role: "employee", Active: true},
		{ID: "w2", FullName: "Worker 2", Role: "employee", Active: true},
		{ID: "w3", FullName: "Worker 3", Role: "employee", Active: true},
		{ID: "w4", FullName: "Worker 4", Role: "employee", Active: true},
		{ID: "w5", FullName: "Worker 5", Role: "employee", Active: true},
	}
}
