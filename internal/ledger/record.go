// Package ledger implements the Task Ledger: one Markdown file per
// execution attempt, its frontmatter acting as a small one-way state
// machine (QUEUED -> IN_PROGRESS -> {PROCESSED|FAILED}).
package ledger

import "time"

// Status is a task's position in its one-way lifecycle.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

// Priority mirrors AgentDefinition.TaskPriority, carried through to the
// task file for operator visibility.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Record is the in-memory projection of a task file's frontmatter plus the
// path it lives at. Body sections are handled separately by body.go —
// Record never holds the full rendered Markdown.
type Record struct {
	Path string

	Title           string
	Created         time.Time
	Completed       time.Time // zero until a terminal status is set
	Status          Status
	Worker          string
	Priority        Priority
	TaskType        string // agent abbreviation
	TriggerDataJSON string // populated only while Status == StatusQueued
	ExecutionLog    string // wiki link to the log file

	SourcePath  string // triggering file's path, as carried by the FileEvent
	EventKind   string
	PromptBody  string
	ProcessLog  []string
	ErrorMessage string
}

const timestampLayout = "2006-01-02T15:04:05-07:00"
