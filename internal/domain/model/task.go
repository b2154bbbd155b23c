package model

import (
	"fmt"
	"time"
)

// Skill is a competence category a worker is scored on.
type Skill string

const (
	SkillInspection  Skill = "inspection"
	SkillPreparation Skill = "preparation"
	SkillSales       Skill = "sales"
	SkillDelivery    Skill = "delivery"
	SkillCleaning    Skill = "cleaning"
	SkillMaintenance Skill = "maintenance"
	SkillAccounting  Skill = "accounting"
)

// Skills lists every skill category in a stable order.
func Skills() []Skill {
	return []Skill{
		SkillInspection,
		SkillPreparation,
		SkillSales,
		SkillDelivery,
		SkillCleaning,
		SkillMaintenance,
		SkillAccounting,
	}
}

// Valid reports whether s is a known skill.
func (s Skill) Valid() bool {
	switch s {
	case SkillInspection, SkillPreparation, SkillSales, SkillDelivery,
		SkillCleaning, SkillMaintenance, SkillAccounting:
		return true
	}
	return false
}

// TaskKind classifies a unit of work.
type TaskKind string

const (
	KindInspection      TaskKind = "inspection"
	KindPreparation     TaskKind = "preparation"
	KindPackaging       TaskKind = "packaging"
	KindDelivery        TaskKind = "delivery"
	KindCleaning        TaskKind = "cleaning"
	KindMaintenance     TaskKind = "maintenance"
	KindAccounting      TaskKind = "accounting"
	KindSales           TaskKind = "sales"
	KindSticker         TaskKind = "sticker"
	KindStockOrder      TaskKind = "stock_order"
	KindWarrantyInspect TaskKind = "warranty_inspect"
	KindWarrantySend    TaskKind = "warranty_send"
)

// ParseTaskKind converts s into a known TaskKind.
func ParseTaskKind(s string) (TaskKind, error) {
	k := TaskKind(s)
	if _, ok := k.skill(); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskKind, s)
	}
	return k, nil
}

// Skill returns the skill category a task kind is scored against.
// Unknown kinds fall back to preparation.
func (k TaskKind) Skill() Skill {
	s, ok := k.skill()
	if !ok {
		return SkillPreparation
	}
	return s
}

func (k TaskKind) skill() (Skill, bool) {
	switch k {
	case KindInspection, KindWarrantyInspect:
		return SkillInspection, true
	case KindPreparation, KindPackaging, KindSticker:
		return SkillPreparation, true
	case KindDelivery, KindWarrantySend:
		return SkillDelivery, true
	case KindCleaning:
		return SkillCleaning, true
	case KindMaintenance:
		return SkillMaintenance, true
	case KindAccounting, KindStockOrder:
		return SkillAccounting, true
	case KindSales:
		return SkillSales, true
	}
	return "", false
}

// Priority orders work for the assignee.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// SourceReference points a task back at the record that caused it.
type SourceReference struct {
	EventType EventType         `json:"event_type"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// TaskDefinition is a generated, not yet assigned unit of work.
type TaskDefinition struct {
	Kind             TaskKind        `json:"task_kind"`
	Title            string          `json:"title"`
	TitleLocalized   string          `json:"title_localized"`
	Priority         Priority        `json:"priority"`
	RequiredSkill    Skill           `json:"required_skill"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	SourceReference  SourceReference `json:"source_reference"`
	RequiresApproval bool            `json:"requires_approval"`
}

// Skill resolves the skill the definition is scored against.
func (d TaskDefinition) Skill() Skill {
	if d.RequiredSkill.Valid() {
		return d.RequiredSkill
	}
	return d.Kind.Skill()
}

// DisplayTitle prefers the localized title, as shown to workers.
func (d TaskDefinition) DisplayTitle() string {
	if d.TitleLocalized != "" {
		return d.TitleLocalized
	}
	return d.Title
}

// TaskStatus is the lifecycle state of a persisted task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Open reports whether the task still consumes its assignee's capacity.
func (s TaskStatus) Open() bool {
	return s != TaskCompleted && s != TaskCancelled
}

// Task is a row of the external task store.
type Task struct {
	ID               string
	Title            string
	Description      string
	AssignedTo       string
	CreatedBy        string
	Priority         Priority
	Status           TaskStatus
	Category         TaskKind
	Source           string
	SourceReference  SourceReference
	EstimatedMinutes int
	DueAt            *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Rating           *float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Definition rebuilds a definition from a stored task, used for reassignment.
func (t Task) Definition() TaskDefinition {
	kind := t.Category
	if kind == "" {
		kind = KindPreparation
	}
	minutes := t.EstimatedMinutes
	if minutes <= 0 {
		minutes = DefaultEstimatedMinutes
	}
	priority := t.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return TaskDefinition{
		Kind:             kind,
		Title:            t.Title,
		TitleLocalized:   t.Title,
		Priority:         priority,
		RequiredSkill:    kind.Skill(),
		EstimatedMinutes: minutes,
		SourceReference:  t.SourceReference,
	}
}

// DefaultEstimatedMinutes applies when a task carries no estimate.
const DefaultEstimatedMinutes = 60
