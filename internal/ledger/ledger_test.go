package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	require.NoError(t, l.Append(Round{Number: 1, Input: "start", Output: "→ Task: 1. Recon - in-progress", InputTokens: 10, OutputTokens: 20, ToolsUsed: []string{"system_command"}, Timestamp: t0}))
	require.NoError(t, l.Append(Round{Number: 2, Input: "try base64", Output: "picoCTF{done_here}", InputTokens: 5, OutputTokens: 7, Source: SourceHuman, Timestamp: t0.Add(time.Minute)}))
	return l
}

func TestAppendEnforcesIncreasingNumbers(t *testing.T) {
	l := New()
	assert.Error(t, l.Append(Round{Number: 0}))
	require.NoError(t, l.Append(Round{Number: 3}))
	assert.Error(t, l.Append(Round{Number: 3}))
	assert.Error(t, l.Append(Round{Number: 2}))
	require.NoError(t, l.Append(Round{Number: 5}))

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last.Number)
	assert.Equal(t, SourceAgent, last.Source)
	assert.Equal(t, []string{}, last.ToolsUsed)
	assert.Equal(t, 2, l.Len())
}

func TestTotals(t *testing.T) {
	in, out := sampleLedger(t).Totals()
	assert.Equal(t, 15, in)
	assert.Equal(t, 27, out)
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, SourceHuman, ParseSource("human"))
	assert.Equal(t, SourceAgent, ParseSource("agent"))
	assert.Equal(t, SourceAgent, ParseSource("anything"))
}

func TestSummaryShape(t *testing.T) {
	s := sampleLedger(t).Summary(SummaryOptions{
		Flag:       "picoCTF{done_here}",
		Verified:   true,
		Candidates: []string{"picoCTF{done_here}"},
		TaskTree:   "📋 tree",
	})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.EqualValues(t, 2, doc["total_rounds"])
	assert.EqualValues(t, 15, doc["total_input_tokens"])
	assert.EqualValues(t, 27, doc["total_output_tokens"])
	assert.EqualValues(t, 42, doc["total_tokens"])
	assert.Equal(t, map[string]interface{}{
		"value": "picoCTF{done_here}", "found": true, "format": "picoCTF{...}", "verified": true,
	}, doc["flag"])
	assert.Equal(t, "📋 tree", doc["task_tree"])

	history := doc["conversation_history"].([]interface{})
	require.Len(t, history, 2)
	first := history[0].(map[string]interface{})
	second := history[1].(map[string]interface{})
	assert.Equal(t, "start", first["agent_input"])
	assert.NotContains(t, first, "human_input")
	assert.Equal(t, "try base64", second["human_input"])
	assert.NotContains(t, second, "agent_input")
	assert.Equal(t, []interface{}{}, second["tools_used"])
}

func TestSummaryWithoutFlag(t *testing.T) {
	s := New().Summary(SummaryOptions{})
	data, err := json.Marshal(s.Flag)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null,"found":false,"format":"picoCTF{...}","verified":false}`, string(data))
	assert.Equal(t, []string{}, s.AllFlagCandidates)
}

func TestSaveAndLoadSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hitl_solution_conversation.json")
	s := sampleLedger(t).Summary(SummaryOptions{SessionID: "abc"})
	require.NoError(t, SaveSummary(path, s))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := LoadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.SessionID)
	require.Len(t, loaded.ConversationHistory, 2)
	assert.Equal(t, SourceHuman, loaded.ConversationHistory[1].Source)
	assert.Equal(t, "try base64", loaded.ConversationHistory[1].Input)
	assert.True(t, loaded.ConversationHistory[0].Timestamp.Equal(t0))
}

func TestSaveSummaryRequiresPath(t *testing.T) {
	assert.Error(t, SaveSummary("", Summary{}))
}
