package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/codefionn/flagrunner/internal/tasktree"
)

// TaskManagerTool validates structured task reports and echoes what it
// understood. It never touches the tree: the round controller applies the
// report, from the inline markup in the response or from the native call.
type TaskManagerTool struct{}

// NewTaskManagerTool creates the reporter tool.
func NewTaskManagerTool() *TaskManagerTool { return &TaskManagerTool{} }

func (t *TaskManagerTool) Name() string { return ToolNameTaskManager }

func (t *TaskManagerTool) Description() string {
	return "Report task status updates for the task tree. Each update has an optional task_id, " +
		"a description and a status (pending|in-progress|completed|failed)."
}

func (t *TaskManagerTool) InputDescription() string {
	return `{"updates":[{"task_id":"optional","description":"...","status":"pending|in-progress|completed|failed","parent_id":"optional","details":"optional"}],"context":"optional"}`
}

type taskUpdateResult struct {
	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Processed   bool   `json:"processed"`
	Error       string `json:"error,omitempty"`
}

type taskManagerReply struct {
	Success          bool               `json:"success"`
	ProcessedUpdates int                `json:"processed_updates"`
	Results          []taskUpdateResult `json:"results"`
	Context          string             `json:"context"`
}

// Invoke checks a report and returns the processed summary as JSON.
func (t *TaskManagerTool) Invoke(_ context.Context, input string) Result {
	body := strings.TrimSpace(input)
	report, err := tasktree.ParseReport(body)
	if report == nil {
		if json.Valid([]byte(body)) {
			return Fail("Input must be a JSON object")
		}
		return Fail("Invalid JSON input: %v", err)
	}
	if len(report.Updates) == 0 {
		return Fail("No task updates provided")
	}

	reply := taskManagerReply{
		Success: true,
		Context: report.Context,
		Results: make([]taskUpdateResult, 0, len(report.Updates)),
	}
	for _, u := range report.Updates {
		id := rawTaskID(u.TaskID)
		if id == "" {
			id = uuid.NewString()[:8]
		}
		status, _ := tasktree.ParseStatus(u.Status)
		reply.Results = append(reply.Results, taskUpdateResult{
			TaskID:      id,
			Description: u.Description,
			Status:      string(status),
			Processed:   true,
		})
	}
	reply.ProcessedUpdates = len(reply.Results)

	if err != nil {
		reply.Results = append(reply.Results, taskUpdateResult{Error: err.Error()})
	}

	data, mErr := json.Marshal(reply)
	if mErr != nil {
		return Fail("Processing error: %v", mErr)
	}
	return OK(string(data))
}

func rawTaskID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
