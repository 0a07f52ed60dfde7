package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flagrunner/internal/ledger"
	"github.com/codefionn/flagrunner/internal/llm/llmtest"
	"github.com/codefionn/flagrunner/internal/prompts"
)

const fiveTasks = `→ Task: 1. Read the prompt - completed
→ Task: 2. Inspect the file - completed
→ Task: 3. Extract strings - completed
→ Task: 4. Decode base64 - in-progress
→ Task: 5. Submit - pending`

func TestContinuePromptRecentKind(t *testing.T) {
	c := newController(t, llmtest.New(llmtest.Text(fiveTasks)))
	_, err := c.Interact(context.Background(), "start", ledger.SourceAgent)
	require.NoError(t, err)

	got := c.ContinuePrompt([]string{`{"success": true, "output": ""}`, "older result", "latest result"})
	assert.Contains(t, got, "Result 1:\nlatest result\n")
	assert.Contains(t, got, "Result 2:\nolder result\n")
	assert.NotContains(t, got, `{"success"`)
	assert.Contains(t, got, "[→] 4. Decode base64")
	assert.NotContains(t, got, "Read the prompt", "recent context keeps the last tasks only")
	assert.Contains(t, got, "(Reverse Engineering)")
}

func TestContinuePromptFullKind(t *testing.T) {
	c := newController(t, llmtest.New(llmtest.Text("→ Task: 1. Decode - in-progress")))
	_, err := c.Interact(context.Background(), "start", ledger.SourceAgent)
	require.NoError(t, err)

	decoded := "decoded: " + strings.Repeat("x", 120)
	got := c.ContinuePrompt([]string{"noise", decoded, "latest"})
	assert.Contains(t, got, "Result 1:\nlatest\n")
	assert.Contains(t, got, "Result 2:\n"+decoded+"\n")
	assert.NotContains(t, got, "noise")
	assert.Contains(t, got, "Task Progress")
}

func TestContinuePromptWithoutResults(t *testing.T) {
	c := newController(t, llmtest.New())
	assert.Contains(t, c.ContinuePrompt(nil), "No previous execution results.")
}

func TestNextInput(t *testing.T) {
	c := newController(t, llmtest.New(llmtest.Text("thinking"), llmtest.Text("<tool>echo</tool><input>file flag.bin</input>")))
	ctx := context.Background()

	first := c.NextInput()
	assert.True(t, strings.HasPrefix(first, "Recent Progress:\nNo tasks recorded yet\n\n"+prompts.FirstStep), first)

	_, err := c.Interact(ctx, first, ledger.SourceAgent)
	require.NoError(t, err)
	assert.Contains(t, c.NextInput(), prompts.DetermineNext)

	_, err = c.Interact(ctx, c.NextInput(), ledger.SourceAgent)
	require.NoError(t, err)
	next := c.NextInput()
	assert.Contains(t, next, "echo: file flag.bin")
	assert.NotContains(t, next, prompts.DetermineNext)
}

func TestNeedsHumanInput(t *testing.T) {
	tests := []struct {
		response string
		want     bool
	}{
		{"I NEED HUMAN INPUT to continue", true},
		{"I cannot determine the key", true},
		{"Please specify the port", true},
		{"Need clarification on the format", true},
		{"Manual intervention required here", true},
		{"Running strings next", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsHumanInput(tt.response), tt.response)
	}
}

func TestExtractFlagFromHistory(t *testing.T) {
	c := newController(t, llmtest.New(
		llmtest.Text("maybe picoCTF{first_try}"),
		llmtest.Text("nothing here"),
	))
	ctx := context.Background()

	_, ok := c.ExtractFlagFromHistory()
	assert.False(t, ok)

	_, err := c.Interact(ctx, "start", ledger.SourceAgent)
	require.NoError(t, err)
	_, err = c.Interact(ctx, "I found picoctf{typed_by_human}", ledger.SourceHuman)
	require.NoError(t, err)

	got, ok := c.ExtractFlagFromHistory()
	require.True(t, ok)
	assert.Equal(t, "picoctf{typed_by_human}", got, "newest round wins, input checked after response")
}

func TestFinalCandidatePrefersToolResults(t *testing.T) {
	c := newController(t, llmtest.New(llmtest.Text("guess picoCTF{from_text} <tool>leak</tool><input>x</input>")))
	_, err := c.Interact(context.Background(), "start", ledger.SourceAgent)
	require.NoError(t, err)

	got, ok := c.FinalCandidate()
	require.True(t, ok)
	assert.Equal(t, "picoCTF{from_tool}", got)
	assert.Contains(t, c.VerificationPrompt(), "picoCTF{from_tool}")
}

func TestSaveSummary(t *testing.T) {
	c := newController(t, llmtest.New(llmtest.Text("→ Task: 1. Solve - completed\nThe flag is picoCTF{d0n3}")))
	_, err := c.Interact(context.Background(), "start", ledger.SourceAgent)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "summary.json")
	require.NoError(t, c.SaveSummary(path, Final{Mode: "auto", Flag: "picoCTF{d0n3}", Verified: true}))

	s, err := ledger.LoadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalRounds)
	assert.Equal(t, "Bit-O-Asm-1", s.ChallengeTitle)
	require.NotNil(t, s.Flag.Value)
	assert.Equal(t, "picoCTF{d0n3}", *s.Flag.Value)
	assert.True(t, s.Flag.Verified)
	assert.Equal(t, []string{"picoCTF{d0n3}"}, s.AllFlagCandidates)
	assert.Contains(t, s.TaskTree, "[✓] 1. Solve")
}
