package tasks

import (
	"time"
)

// DateLayout is the only accepted deadline format, a bare calendar date.
const DateLayout = "2006-01-02"

type Status int

const (
	StatusPending Status = iota
	StatusCompleted
)

func (s Status) String() string {
	if s == StatusCompleted {
		return "completed"
	}
	return "pending"
}

type Task struct {
	ID       int64  `json:"id"`
	Assignee string `json:"assignee"`
	Creator  string `json:"creator"`
	Text     string `json:"text"`
	Deadline string `json:"deadline"` // ISO 8601 date, no time component
	Status   Status `json:"status"`
}

// Draft holds the fields collected by the conversation before the store
// assigns an id.
type Draft struct {
	Assignee string
	Creator  string
	Text     string
	Deadline string
}

// DeadlineDate parses the stored deadline. The column is free text at the
// SQL level, so callers scanning many rows must treat a parse failure as
// a per-row condition, not a fatal one.
func (t *Task) DeadlineDate() (time.Time, error) {
	return time.Parse(DateLayout, t.Deadline)
}

// ParseDate strictly parses user-supplied text as a calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders a date the way the store persists it.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
