// Package contextopt decides how much of the task tree and recent tool output
// is resent to the model each round.
package contextopt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codefionn/flagrunner/internal/consts"
	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/tasktree"
)

// Kind labels how much context a snapshot carries.
type Kind string

const (
	KindEmpty  Kind = "empty"
	KindRecent Kind = "recent"
	KindFull   Kind = "full"
)

const emptyContent = "No tasks recorded yet"

var (
	errorKeywords = []string{"error", "failed", "exception", "traceback"}

	importantPatterns = []*regexp.Regexp{
		flag.Pattern,
		regexp.MustCompile(`(?i)flag\s*[=:]`),
		regexp.MustCompile(`(?i)ctf\{`),
		regexp.MustCompile(`(?i)error\s*:`),
		regexp.MustCompile(`(?i)traceback`),
		regexp.MustCompile(`(?i)exception`),
		regexp.MustCompile(`(?i)failed`),
		regexp.MustCompile(`(?i)extracted\s+characters?\s*[:=]`),
		regexp.MustCompile(`(?i)decoded\s*[:=]`),
		regexp.MustCompile(`(?i)output\s*[:=]`),
		regexp.MustCompile(`(?i)result\s*[:=]`),
		regexp.MustCompile(`(?i)characters?\s+from`),
		regexp.MustCompile(`(?i)combination`),
		regexp.MustCompile(`(?i)potential\s+flag`),
	}
)

// Tree is the read-only view of the task tree the optimizer needs.
type Tree interface {
	Len() int
	Tasks() []tasktree.Task
	Display() string
}

// Config tunes the compaction policy. Zero fields take the package defaults.
type Config struct {
	FullContextInterval int
	MaxRecentTasks      int
	FewTasksThreshold   int
	GuaranteeThreshold  int
	ImportantLength     int
	ImportantWindow     int
	PreviewLength       int
}

// DefaultConfig returns the standard compaction policy.
func DefaultConfig() Config {
	return Config{
		FullContextInterval: consts.FullContextInterval,
		MaxRecentTasks:      consts.MaxRecentTasks,
		FewTasksThreshold:   consts.FewTasksThreshold,
		GuaranteeThreshold:  consts.GuaranteeThreshold,
		ImportantLength:     consts.ImportantResultLength,
		ImportantWindow:     consts.ImportantWindow,
		PreviewLength:       consts.PreviewLength,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FullContextInterval <= 0 {
		c.FullContextInterval = d.FullContextInterval
	}
	if c.MaxRecentTasks <= 0 {
		c.MaxRecentTasks = d.MaxRecentTasks
	}
	if c.FewTasksThreshold <= 0 {
		c.FewTasksThreshold = d.FewTasksThreshold
	}
	if c.GuaranteeThreshold <= 0 {
		c.GuaranteeThreshold = d.GuaranteeThreshold
	}
	if c.ImportantLength <= 0 {
		c.ImportantLength = d.ImportantLength
	}
	if c.ImportantWindow <= 0 {
		c.ImportantWindow = d.ImportantWindow
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = d.PreviewLength
	}
	return c
}

// Snapshot is the rendered context for one round.
type Snapshot struct {
	Kind          Kind
	Content       string
	TokenEstimate int
	// GuaranteedResults are tool outputs that must be resent verbatim because
	// the rendered content does not carry them in full.
	GuaranteedResults []string
	TasksIncluded     int
}

// Optimizer implements the two-tier compaction policy.
type Optimizer struct {
	cfg Config
}

// New creates an optimizer.
func New(cfg Config) *Optimizer {
	return &Optimizer{cfg: cfg.withDefaults()}
}

func (o *Optimizer) Config() Config { return o.cfg }

// ShouldSendFull reports whether the whole tree is needed this round: at
// every interval checkpoint, while the tree is small, or whenever a recent
// result carries a flag or an error.
func (o *Optimizer) ShouldSendFull(round, taskCount int, recent []string) bool {
	if round%o.cfg.FullContextInterval == 0 {
		return true
	}
	if taskCount <= o.cfg.FewTasksThreshold {
		return true
	}
	for _, result := range recent {
		if result == "" {
			continue
		}
		if flag.Pattern.MatchString(result) {
			return true
		}
		lower := strings.ToLower(result)
		for _, kw := range errorKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// Optimize renders the context for round from the tree and the most recent
// tool results (oldest first).
func (o *Optimizer) Optimize(tree Tree, round int, recent []string) Snapshot {
	if tree == nil || tree.Len() == 0 {
		return Snapshot{Kind: KindEmpty, Content: emptyContent, TokenEstimate: consts.EmptyContextTokens}
	}

	taskCount := tree.Len()
	if o.ShouldSendFull(round, taskCount, recent) {
		content := tree.Display()
		return Snapshot{
			Kind:              KindFull,
			Content:           content,
			TokenEstimate:     estimate(content),
			GuaranteedResults: o.guaranteed(content, recent, true),
			TasksIncluded:     taskCount,
		}
	}

	tasks := tree.Tasks()
	if len(tasks) > o.cfg.MaxRecentTasks {
		tasks = tasks[len(tasks)-o.cfg.MaxRecentTasks:]
	}
	content := o.recentSummary(tasks)
	return Snapshot{
		Kind:              KindRecent,
		Content:           content,
		TokenEstimate:     estimate(content),
		GuaranteedResults: o.guaranteed(content, recent, false),
		TasksIncluded:     len(tasks),
	}
}

func (o *Optimizer) recentSummary(tasks []tasktree.Task) string {
	lines := make([]string, 0, len(tasks)*2)
	for _, task := range tasks {
		lines = append(lines, fmt.Sprintf("%s %d. %s", recentGlyph(task.Status), task.ID, task.Description))
		if sub, ok := task.LastSubtask(); ok && strings.TrimSpace(sub.Result) != "" {
			lines = append(lines, "   -> "+tasktree.Truncate(sub.Result, o.cfg.PreviewLength))
		}
	}
	return strings.Join(lines, "\n")
}

// recentGlyph differs from the tree display only for pending tasks.
func recentGlyph(s tasktree.Status) string {
	if s == tasktree.StatusPending {
		return "[ ]"
	}
	return s.Glyph()
}

// guaranteed selects results the rendered content elides. The newest result
// is always considered once it exceeds the guarantee threshold; earlier ones
// only when they look important, and only in full snapshots.
func (o *Optimizer) guaranteed(content string, recent []string, includeImportant bool) []string {
	if len(recent) == 0 {
		return nil
	}

	var out []string
	latest := recent[len(recent)-1]
	if len(strings.TrimSpace(latest)) > o.cfg.GuaranteeThreshold && Elided(content, latest) {
		out = append(out, latest)
	}

	if !includeImportant {
		return out
	}

	start := len(recent) - 1 - o.cfg.ImportantWindow
	if start < 0 {
		start = 0
	}
	for _, result := range recent[start : len(recent)-1] {
		if len(strings.TrimSpace(result)) <= o.cfg.GuaranteeThreshold {
			continue
		}
		if o.IsImportant(result) && Elided(content, result) && !contains(out, result) {
			out = append(out, result)
		}
	}
	return out
}

// IsImportant reports whether a tool result carries a flag, an error, a
// decoded or extracted value, or is simply long.
func (o *Optimizer) IsImportant(result string) bool {
	if result == "" {
		return false
	}
	for _, p := range importantPatterns {
		if p.MatchString(result) {
			return true
		}
	}
	return len(result) > o.cfg.ImportantLength
}

// Elided reports whether content fails to carry result verbatim.
func Elided(content, result string) bool {
	return !strings.Contains(content, strings.TrimSpace(result))
}

// Stats summarizes a snapshot for logs.
func Stats(s Snapshot) string {
	var base string
	switch s.Kind {
	case KindFull:
		base = fmt.Sprintf("Full context: %d tasks (~%d tokens)", s.TasksIncluded, s.TokenEstimate)
	case KindRecent:
		base = fmt.Sprintf("Recent context: %d tasks (~%d tokens)", s.TasksIncluded, s.TokenEstimate)
	default:
		base = fmt.Sprintf("Minimal context (~%d tokens)", s.TokenEstimate)
	}
	if n := len(s.GuaranteedResults); n > 0 {
		base += fmt.Sprintf(" + %d important results", n)
	}
	return base
}

func estimate(content string) int {
	return len(content) / consts.CharsPerToken
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
