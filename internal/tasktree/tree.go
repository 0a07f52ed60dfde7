// Package tasktree keeps the hierarchical progress ledger a solving session
// reports through task directives and tool invocations.
package tasktree

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codefionn/flagrunner/internal/consts"
	"github.com/codefionn/flagrunner/internal/logger"
)

// ReporterTool is the name of the task-reporting tool. Its invocations report
// status and are not recorded as subtasks.
const ReporterTool = "task_manager"

// DefaultTaskDescription names the task synthesized when a tool runs before any
// task was declared.
const DefaultTaskDescription = "Challenge analysis and solving"

var (
	arrowDirective = regexp.MustCompile(`(?i)(?:→|->)\s*Task:\s*(\d+)\.\s*(.*?)\s+-\s+(completed|in-progress|failed|pending)`)
	reporterCall   = regexp.MustCompile(`(?s)<tool>\s*` + ReporterTool + `\s*</tool>\s*<input>(.*?)</input>`)
)

// Update is one entry of the reporter tool's "updates" array.
type Update struct {
	TaskID      json.RawMessage `json:"task_id,omitempty"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	ParentID    json.RawMessage `json:"parent_id,omitempty"`
	Details     string          `json:"details,omitempty"`
}

// Report is the JSON body accepted by the reporter tool.
type Report struct {
	Updates []Update `json:"updates"`
	Context string   `json:"context,omitempty"`
}

// Tree is the task ledger for one challenge. It is not safe for concurrent
// mutation; the round controller is its only writer.
type Tree struct {
	title       string
	storagePath string
	tasks       []Task
	watermark   int
	now         func() time.Time
}

// New creates an empty tree persisted at storagePath.
func New(title, storagePath string) *Tree {
	if strings.TrimSpace(title) == "" {
		title = "Challenge"
	}
	return &Tree{
		title:       title,
		storagePath: storagePath,
		now:         time.Now,
	}
}

func (t *Tree) Title() string       { return t.title }
func (t *Tree) StoragePath() string { return t.storagePath }
func (t *Tree) Len() int            { return len(t.tasks) }

// Watermark is the highest task id ever allocated.
func (t *Tree) Watermark() int { return t.watermark }

// Tasks returns a copy of the tasks sorted by id.
func (t *Tree) Tasks() []Task {
	out := make([]Task, len(t.tasks))
	for i, task := range t.tasks {
		out[i] = clone(task)
	}
	return out
}

// Task looks up a task by id.
func (t *Tree) Task(id int) (Task, bool) {
	if i := t.indexOf(id); i >= 0 {
		return clone(t.tasks[i]), true
	}
	return Task{}, false
}

func (t *Tree) indexOf(id int) int {
	for i := range t.tasks {
		if t.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// upsert applies an update in place or appends a new task. The watermark
// never decreases.
func (t *Tree) upsert(id int, description string, status Status, parentID, details string) {
	now := t.now()
	if i := t.indexOf(id); i >= 0 {
		task := &t.tasks[i]
		task.Status = status
		if description != "" {
			task.Description = description
		}
		if parentID != "" {
			task.ParentID = parentID
		}
		if details != "" {
			task.Details = details
		}
		task.Timestamp = now
		return
	}

	t.tasks = append(t.tasks, Task{
		ID:          id,
		Description: description,
		Status:      status,
		Timestamp:   now,
		Subtasks:    []Subtask{},
		ParentID:    parentID,
		Details:     details,
	})
	if id > t.watermark {
		t.watermark = id
	}
}

func (t *Tree) sort() {
	sort.SliceStable(t.tasks, func(i, j int) bool { return t.tasks[i].ID < t.tasks[j].ID })
}

// ExtractTasksFromResponse applies the task directives found in a model
// response and returns how many tasks were created or updated. Arrow
// directives take precedence; reporter-tool JSON is only consulted when none
// are present. Zero means the response carried no directives.
func (t *Tree) ExtractTasksFromResponse(text string) int {
	count := 0
	for _, m := range arrowDirective.FindAllStringSubmatch(text, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || id <= 0 {
			logger.Warn("ignoring task directive with id %q", m[1])
			continue
		}
		status, _ := ParseStatus(m[3])
		t.upsert(id, strings.TrimSpace(m[2]), status, "", "")
		count++
	}

	if count == 0 {
		for _, m := range reporterCall.FindAllStringSubmatch(text, -1) {
			n, err := t.ApplyReport(m[1])
			if err != nil {
				logger.Warn("skipping malformed task report: %v", err)
			}
			count += n
		}
	}

	t.sort()
	return count
}

// ApplyReport parses a reporter-tool JSON body (optionally wrapped in a code
// fence) and applies each update. Updates without a usable task_id get the
// next id above the watermark. A malformed entry is skipped without affecting
// its siblings; the returned error describes what was skipped.
func (t *Tree) ApplyReport(body string) (int, error) {
	report, err := ParseReport(body)
	if report == nil {
		return 0, err
	}

	for _, u := range report.Updates {
		id, ok := rawID(u.TaskID)
		if !ok {
			id = t.watermark + 1
		}
		status, valid := ParseStatus(u.Status)
		if !valid && u.Status != "" {
			logger.Debug("task %d: unknown status %q, using pending", id, u.Status)
		}
		description := strings.TrimSpace(u.Description)
		if description == "" && t.indexOf(id) < 0 {
			description = "Unknown task"
		}
		parent, _ := rawString(u.ParentID)
		t.upsert(id, description, status, parent, strings.TrimSpace(u.Details))
	}
	t.sort()
	return len(report.Updates), err
}

// ParseReport decodes a reporter-tool body. When only some entries of the
// updates array are malformed, the valid ones are returned together with an
// error describing the rest.
func ParseReport(body string) (*Report, error) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var raw struct {
		Updates []json.RawMessage `json:"updates"`
		Context string            `json:"context"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("invalid task report JSON: %w", err)
	}

	report := &Report{Context: raw.Context}
	var errs []error
	for i, entry := range raw.Updates {
		var u Update
		if err := json.Unmarshal(entry, &u); err != nil {
			errs = append(errs, fmt.Errorf("update %d: %w", i, err))
			continue
		}
		report.Updates = append(report.Updates, u)
	}
	return report, errors.Join(errs...)
}

// rawID accepts numeric ids and numeric strings.
func rawID(raw json.RawMessage) (int, bool) {
	s, ok := rawString(raw)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// UpdateTaskStatus sets a task's status, creating the task when absent.
// Unknown statuses become pending.
func (t *Tree) UpdateTaskStatus(id int, status, description string) {
	st, ok := ParseStatus(status)
	if !ok {
		logger.Warn("invalid status %q for task %d, using pending", status, id)
	}
	if description == "" && t.indexOf(id) < 0 {
		description = fmt.Sprintf("Task %d", id)
	}
	t.upsert(id, description, st, "", "")
	t.sort()
}

// AddToolResult attaches a tool invocation to the dispatch target: the last
// in-progress task, or the highest-id task when none is in progress. It
// reports false for reporter-tool invocations, which are not recorded.
func (t *Tree) AddToolResult(tool, input, result string) (int, bool) {
	if tool == ReporterTool {
		return 0, false
	}

	if len(t.tasks) == 0 {
		t.upsert(1, DefaultTaskDescription, StatusInProgress, "", "")
	}

	target := &t.tasks[len(t.tasks)-1]
	for i := len(t.tasks) - 1; i >= 0; i-- {
		if t.tasks[i].Status == StatusInProgress {
			target = &t.tasks[i]
			break
		}
	}

	target.Subtasks = append(target.Subtasks, Subtask{
		ID:        len(target.Subtasks) + 1,
		Tool:      tool,
		Input:     Truncate(input, consts.SubtaskInputLimit),
		Result:    Truncate(result, consts.SubtaskResultLimit),
		Timestamp: t.now(),
	})
	return target.ID, true
}

// Display renders the whole tree.
func (t *Tree) Display() string {
	if len(t.tasks) == 0 {
		return "📋 No tasks yet"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s - Task Progress\n", t.title)
	b.WriteString(strings.Repeat("=", 50))

	for _, task := range t.tasks {
		fmt.Fprintf(&b, "\n%s %d. %s", task.Status.Glyph(), task.ID, task.Description)
		for _, sub := range task.Subtasks {
			if sub.Tool == ReporterTool {
				continue
			}
			fmt.Fprintf(&b, "\n    %d.%d. Used %s %s - %s",
				task.ID, sub.ID, sub.Tool, sub.Outcome(), Truncate(sub.Result, consts.PreviewLength))
		}
	}
	return b.String()
}
