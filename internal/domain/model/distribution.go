package model

import "time"

// Skill score bounds.
const (
	MinSkillScore       = 0.0
	MaxSkillScore       = 100.0
	ColdStartSkillScore = 50.0
)

// SkillScoreSet maps skill categories to a worker's score in [0,100].
type SkillScoreSet map[Skill]float64

// ColdStartScores returns a set with every skill at the cold start score.
func ColdStartScores() SkillScoreSet {
	set := make(SkillScoreSet, len(Skills()))
	for _, s := range Skills() {
		set[s] = ColdStartSkillScore
	}
	return set
}

// Get returns the score for s, or the cold start score when unknown.
func (s SkillScoreSet) Get(skill Skill) float64 {
	if v, ok := s[skill]; ok {
		return v
	}
	return ColdStartSkillScore
}

// WorkloadSnapshot is derived on demand from a worker's open tasks.
type WorkloadSnapshot struct {
	UserID                    string  `json:"user_id"`
	TaskCount                 int     `json:"task_count"`
	EstimatedMinutesRemaining int     `json:"estimated_minutes_remaining"`
	Utilization               float64 `json:"utilization"`
}

// ApprovalStatus is the state of a human approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// AssignmentApproval holds a suggestion that needs a manager's decision.
type AssignmentApproval struct {
	ID              string         `json:"id"`
	TaskDefinition  TaskDefinition `json:"task_definition"`
	SuggestedUserID string         `json:"suggested_user_id"`
	SuggestedScore  float64        `json:"suggested_score"`
	Status          ApprovalStatus `json:"status"`
	ApprovedBy      string         `json:"approved_by,omitempty"`
	CreatedTaskID   string         `json:"created_task_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
}

// Method records how an assignment decision was made.
type Method string

const (
	MethodAuto     Method = "auto"
	MethodApproval Method = "approval"
	MethodReassign Method = "reassign"
)

// DistributionLogEntry is one row of the append-only assignment audit trail.
type DistributionLogEntry struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	AssignedTo string    `json:"assigned_to"`
	Method     Method    `json:"method"`
	CreatedAt  time.Time `json:"created_at"`
}

// DistributionConfig tunes candidate scoring. It is hot-reloadable.
type DistributionConfig struct {
	WeightSkill         float64 `json:"weight_skill" koanf:"weight_skill" validate:"gte=0"`
	WeightWorkload      float64 `json:"weight_workload" koanf:"weight_workload" validate:"gte=0"`
	MaxUtilization      float64 `json:"max_utilization" koanf:"max_utilization" validate:"gt=0,lte=1"`
	AutoAssignThreshold float64 `json:"auto_assign_threshold" koanf:"auto_assign_threshold" validate:"gte=0,lte=1"`
}

// DefaultDistributionConfig returns the built-in scoring configuration.
func DefaultDistributionConfig() DistributionConfig {
	return DistributionConfig{
		WeightSkill:         0.6,
		WeightWorkload:      0.4,
		MaxUtilization:      0.85,
		AutoAssignThreshold: 0.7,
	}
}

// Validate checks the invariants struct tags cannot express.
func (c DistributionConfig) Validate() error {
	switch {
	case c.WeightSkill < 0 || c.WeightWorkload < 0:
		return ErrInvalidConfig
	case c.WeightSkill+c.WeightWorkload <= 0:
		return ErrInvalidConfig
	case c.MaxUtilization <= 0 || c.MaxUtilization > 1:
		return ErrInvalidConfig
	case c.AutoAssignThreshold < 0 || c.AutoAssignThreshold > 1:
		return ErrInvalidConfig
	}
	return nil
}

// Notification is an outbound message to a user. Delivery is external.
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ActionURL  string    `json:"action_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// User is a worker or manager known to the directory.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

// SkillStats are aggregate completion counters for one worker and skill.
type SkillStats struct {
	Completions  int `json:"completions"`
	OnTime       int `json:"on_time"`
	TotalMinutes int `json:"total_minutes"`
}

// SkillUpdate is one memoryless score change plus its counter increments.
type SkillUpdate struct {
	UserID  string
	Skill   Skill
	Score   float64
	OnTime  bool
	Minutes int
}

// DistributionStats summarises the engine's persisted state.
type DistributionStats struct {
	PendingApprovals  int            `json:"pending_approvals"`
	ApprovedApprovals int            `json:"approved_approvals"`
	RejectedApprovals int            `json:"rejected_approvals"`
	OpenTasks         int            `json:"open_tasks"`
	Assignments       map[Method]int `json:"assignments"`
}
