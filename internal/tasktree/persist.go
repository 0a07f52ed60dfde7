package tasktree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// document is the persisted JSON form.
type document struct {
	ChallengeTitle string    `json:"challenge_title"`
	Tasks          []Task    `json:"tasks"`
	CurrentTaskID  int       `json:"current_task_id"`
	SavedAt        time.Time `json:"saved_at"`
}

// MarshalJSON renders the persisted document.
func (t *Tree) MarshalJSON() ([]byte, error) {
	tasks := t.tasks
	if tasks == nil {
		tasks = []Task{}
	}
	return json.Marshal(document{
		ChallengeTitle: t.title,
		Tasks:          tasks,
		CurrentTaskID:  t.watermark,
		SavedAt:        t.now(),
	})
}

// Save writes the tree to its storage path.
func (t *Tree) Save() error {
	return t.SaveTo(t.storagePath)
}

// SaveTo atomically writes the tree to path.
func (t *Tree) SaveTo(path string) error {
	if path == "" {
		return fmt.Errorf("task tree has no storage path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create task tree directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task tree: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write task tree: %w", err)
	}
	return nil
}

// Load replaces the tree's contents with the document at its storage path.
// It reports false without error when the file does not exist.
func (t *Tree) Load() (bool, error) {
	data, err := os.ReadFile(t.storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read task tree: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to decode task tree %s: %w", t.storagePath, err)
	}

	if doc.ChallengeTitle != "" {
		t.title = doc.ChallengeTitle
	}
	t.tasks = doc.Tasks
	t.watermark = doc.CurrentTaskID
	for _, task := range t.tasks {
		if task.ID > t.watermark {
			t.watermark = task.ID
		}
	}
	t.sort()
	return true, nil
}
