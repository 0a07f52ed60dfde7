package tasktree

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus normalizes a status string. Underscores are accepted in place of
// hyphens; ok is false for anything outside the four known states.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")) {
	case StatusPending:
		return StatusPending, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	default:
		return StatusPending, false
	}
}

// Glyph returns the bracketed marker used in tree displays.
func (s Status) Glyph() string {
	switch s {
	case StatusCompleted:
		return "[✓]"
	case StatusInProgress:
		return "[→]"
	case StatusFailed:
		return "[✗]"
	case StatusPending:
		return "[~]"
	default:
		return "[?]"
	}
}

// Task is one declared unit of progress.
type Task struct {
	ID          int       `json:"id"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Subtasks    []Subtask `json:"subtasks"`
	ParentID    string    `json:"parent_id,omitempty"`
	Details     string    `json:"details,omitempty"`
}

// LastSubtask returns the most recent subtask, if any.
func (t Task) LastSubtask() (Subtask, bool) {
	if len(t.Subtasks) == 0 {
		return Subtask{}, false
	}
	return t.Subtasks[len(t.Subtasks)-1], true
}

// Subtask records one tool invocation performed under a task. Input and
// Result are stored truncated.
type Subtask struct {
	ID        int       `json:"id"`
	Tool      string    `json:"tool"`
	Input     string    `json:"input"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome classifies a subtask result for display.
func (s Subtask) Outcome() string {
	lower := strings.ToLower(s.Result)
	switch {
	case strings.Contains(lower, "success") || strings.Contains(s.Result, "✓"):
		return "✓"
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed") || strings.Contains(s.Result, "✗"):
		return "✗"
	default:
		return "?"
	}
}

func clone(t Task) Task {
	t.Subtasks = append([]Subtask(nil), t.Subtasks...)
	return t
}

// Truncate cuts s to limit bytes and appends "..." when anything was removed.
// Cuts never split a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
