// Package tasks is the project task store behind the Tasks API: a task
// model, repositories, a TTL cache of per-project task lists and the
// service that keeps the two coherent.
package tasks

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a task ID does not exist.
	ErrNotFound = errors.New("tasks: not found")
	// ErrInvalidTask wraps validation failures.
	ErrInvalidTask = errors.New("tasks: invalid task")
)

// Status is a task's position in the workflow.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Priority orders tasks for agents picking up work.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Task is a unit of work within a project, optionally assigned to an agent.
type Task struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id" validate:"required,max=128"`
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description,omitempty" validate:"max=4000"`
	Status        Status    `json:"status" validate:"oneof=todo in_progress review done"`
	Priority      Priority  `json:"priority" validate:"oneof=low medium high urgent"`
	AssigneeAgent string    `json:"assignee_agent,omitempty" validate:"max=128"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewTask is the input to [Service.Create]. Empty Status and Priority
// default to todo and medium.
type NewTask struct {
	ProjectID     string   `json:"project_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Status        Status   `json:"status,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
	AssigneeAgent string   `json:"assignee_agent,omitempty"`
}

// Patch is the input to [Service.Update]; nil fields are left unchanged.
// Setting ProjectID moves the task to another project.
type Patch struct {
	ProjectID     *string   `json:"project_id,omitempty"`
	Title         *string   `json:"title,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Status        *Status   `json:"status,omitempty"`
	Priority      *Priority `json:"priority,omitempty"`
	AssigneeAgent *string   `json:"assignee_agent,omitempty"`
}

// Apply returns t with p's non-nil fields copied over.
func (p Patch) Apply(t Task) Task {
	if p.ProjectID != nil {
		t.ProjectID = *p.ProjectID
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssigneeAgent != nil {
		t.AssigneeAgent = *p.AssigneeAgent
	}
	return t
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the field constraints of t. Errors wrap [ErrInvalidTask].
func Validate(t Task) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return nil
}
