package contextopt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flagrunner/internal/tasktree"
)

func treeWithTasks(t *testing.T, n int) *tasktree.Tree {
	t.Helper()
	tree := tasktree.New("Warmed Up", "")
	var b strings.Builder
	for i := 1; i <= n; i++ {
		status := "completed"
		if i == n {
			status = "in-progress"
		}
		fmt.Fprintf(&b, "→ Task: %d. Step %d - %s\n", i, i, status)
	}
	tree.ExtractTasksFromResponse(b.String())
	require.Equal(t, n, tree.Len())
	return tree
}

func TestOptimizeEmptyTree(t *testing.T) {
	o := New(Config{})
	s := o.Optimize(tasktree.New("x", ""), 1, nil)
	assert.Equal(t, KindEmpty, s.Kind)
	assert.Equal(t, "No tasks recorded yet", s.Content)
	assert.Equal(t, 20, s.TokenEstimate)
	assert.Equal(t, "Minimal context (~20 tokens)", Stats(s))

	s = o.Optimize(nil, 1, nil)
	assert.Equal(t, KindEmpty, s.Kind)
}

func TestFewTasksSendFullContext(t *testing.T) {
	o := New(Config{})
	tree := treeWithTasks(t, 2)

	s := o.Optimize(tree, 7, []string{"short"})
	assert.Equal(t, KindFull, s.Kind)
	assert.Equal(t, tree.Display(), s.Content)
	assert.Equal(t, len(s.Content)/4, s.TokenEstimate)
	assert.Equal(t, 2, s.TasksIncluded)
	assert.Empty(t, s.GuaranteedResults)
}

func TestShouldSendFull(t *testing.T) {
	o := New(Config{})
	tests := []struct {
		name   string
		round  int
		tasks  int
		recent []string
		want   bool
	}{
		{"interval checkpoint", 10, 8, nil, true},
		{"few tasks", 7, 3, nil, true},
		{"flag in recent", 7, 8, []string{"got picoCTF{abc}"}, true},
		{"error keyword", 7, 8, []string{"Traceback (most recent call last)"}, true},
		{"quiet round", 7, 8, []string{"", "listing done"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.ShouldSendFull(tt.round, tt.tasks, tt.recent))
		})
	}
}

func TestRecentSummaryFormat(t *testing.T) {
	o := New(Config{})
	tree := treeWithTasks(t, 5)
	tree.ExtractTasksFromResponse("→ Task: 6. Later - pending")
	tree.AddToolResult("system_command", "strings bin", "readable strings only")

	s := o.Optimize(tree, 7, []string{"readable strings only"})
	require.Equal(t, KindRecent, s.Kind)
	assert.Equal(t, 3, s.TasksIncluded)
	want := strings.Join([]string{
		"[✓] 4. Step 4",
		"[→] 5. Step 5",
		"   -> readable strings only",
		"[ ] 6. Later",
	}, "\n")
	assert.Equal(t, want, s.Content)
	assert.Empty(t, s.GuaranteedResults, "short results are never guaranteed")
	assert.Equal(t, fmt.Sprintf("Recent context: 3 tasks (~%d tokens)", s.TokenEstimate), Stats(s))
}

func TestLatestResultGuaranteedInBothKinds(t *testing.T) {
	o := New(Config{})
	long := strings.Repeat("decoded bytes ", 12)

	t.Run("full", func(t *testing.T) {
		tree := treeWithTasks(t, 2)
		tree.AddToolResult("system_command", "xxd", long)
		s := o.Optimize(tree, 7, []string{long})
		require.Equal(t, KindFull, s.Kind)
		assert.Equal(t, []string{long}, s.GuaranteedResults)
		assert.Contains(t, Stats(s), "+ 1 important results")
	})

	t.Run("recent", func(t *testing.T) {
		tree := treeWithTasks(t, 6)
		tree.AddToolResult("system_command", "xxd", long)
		s := o.Optimize(tree, 7, []string{long})
		require.Equal(t, KindRecent, s.Kind)
		assert.Equal(t, []string{long}, s.GuaranteedResults)
	})
}

func TestFullContextIncludesImportantEarlierResults(t *testing.T) {
	o := New(Config{})
	tree := treeWithTasks(t, 2)

	important := "Decoded: " + strings.Repeat("6f", 60)
	boring := strings.Repeat("a", 120)
	latest := strings.Repeat("b", 90)
	recent := []string{"ancient but important: " + strings.Repeat("c", 250), important, boring, latest}

	s := o.Optimize(tree, 7, recent)
	require.Equal(t, KindFull, s.Kind)
	assert.Equal(t, []string{latest, important}, s.GuaranteedResults,
		"only the two results before the latest are considered")
}

func TestIsImportant(t *testing.T) {
	o := New(Config{})
	assert.False(t, o.IsImportant(""))
	assert.True(t, o.IsImportant("flag = something"))
	assert.True(t, o.IsImportant("extracted characters: abc"))
	assert.True(t, o.IsImportant(strings.Repeat("z", 201)))
	assert.False(t, o.IsImportant("hello"))
}

func TestElided(t *testing.T) {
	assert.False(t, Elided("header\n  full result\n", "full result  "))
	assert.True(t, Elided("header\n  full res...", "full result"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := New(Config{MaxRecentTasks: 5}).Config()
	assert.Equal(t, 5, cfg.MaxRecentTasks)
	assert.Equal(t, 5, cfg.FullContextInterval)
	assert.Equal(t, 80, cfg.GuaranteeThreshold)
}
