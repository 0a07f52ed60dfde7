package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// FlagFormat is the flag shape reported in summaries.
const FlagFormat = "picoCTF{...}"

// FlagInfo describes the session's final flag.
type FlagInfo struct {
	Value    *string `json:"value"`
	Found    bool    `json:"found"`
	Format   string  `json:"format"`
	Verified bool    `json:"verified"`
}

// HistoryEntry is one round as written to the summary. The input is keyed
// agent_input or human_input depending on its source.
type HistoryEntry struct {
	Round        int
	Source       Source
	Input        string
	Response     string
	InputTokens  int
	OutputTokens int
	ToolsUsed    []string
	Timestamp    time.Time
}

// MarshalJSON writes the source-dependent input key.
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	inputKey := "agent_input"
	if h.Source == SourceHuman {
		inputKey = "human_input"
	}
	tools := h.ToolsUsed
	if tools == nil {
		tools = []string{}
	}

	// field order matches the persisted document
	var buf bytes.Buffer
	buf.WriteByte('{')
	fields := []struct {
		key   string
		value interface{}
	}{
		{"round", h.Round},
		{inputKey, h.Input},
		{"ai_response", h.Response},
		{"input_tokens", h.InputTokens},
		{"output_tokens", h.OutputTokens},
		{"tools_used", tools},
		{"timestamp", h.Timestamp},
	}
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.key)
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either input key.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Round        int       `json:"round"`
		AgentInput   *string   `json:"agent_input"`
		HumanInput   *string   `json:"human_input"`
		Response     string    `json:"ai_response"`
		InputTokens  int       `json:"input_tokens"`
		OutputTokens int       `json:"output_tokens"`
		ToolsUsed    []string  `json:"tools_used"`
		Timestamp    time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = HistoryEntry{
		Round:        raw.Round,
		Source:       SourceAgent,
		Response:     raw.Response,
		InputTokens:  raw.InputTokens,
		OutputTokens: raw.OutputTokens,
		ToolsUsed:    raw.ToolsUsed,
		Timestamp:    raw.Timestamp,
	}
	switch {
	case raw.HumanInput != nil:
		h.Source = SourceHuman
		h.Input = *raw.HumanInput
	case raw.AgentInput != nil:
		h.Input = *raw.AgentInput
	}
	return nil
}

// RoundStat is the compact per-round accounting line.
type RoundStat struct {
	Round        int      `json:"round"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	ToolsUsed    []string `json:"tools_used"`
}

// Summary is the persisted session document.
type Summary struct {
	SessionID           string         `json:"session_id,omitempty"`
	ChallengeTitle      string         `json:"challenge_title,omitempty"`
	Mode                string         `json:"mode,omitempty"`
	TotalRounds         int            `json:"total_rounds"`
	TotalInputTokens    int            `json:"total_input_tokens"`
	TotalOutputTokens   int            `json:"total_output_tokens"`
	TotalTokens         int            `json:"total_tokens"`
	Flag                FlagInfo       `json:"flag"`
	ConversationHistory []HistoryEntry `json:"conversation_history"`
	Rounds              []RoundStat    `json:"rounds"`
	AllFlagCandidates   []string       `json:"all_flag_candidates"`
	TaskTree            string         `json:"task_tree,omitempty"`
}

// SummaryOptions carries the session facts the ledger does not own.
type SummaryOptions struct {
	SessionID      string
	ChallengeTitle string
	Mode           string
	Flag           string
	Verified       bool
	Candidates     []string
	TaskTree       string
}

// Summary builds the session document.
func (l *Ledger) Summary(opts SummaryOptions) Summary {
	in, out := l.Totals()
	s := Summary{
		SessionID:           opts.SessionID,
		ChallengeTitle:      opts.ChallengeTitle,
		Mode:                opts.Mode,
		TotalRounds:         len(l.rounds),
		TotalInputTokens:    in,
		TotalOutputTokens:   out,
		TotalTokens:         in + out,
		Flag:                FlagInfo{Format: FlagFormat, Verified: opts.Verified},
		ConversationHistory: make([]HistoryEntry, 0, len(l.rounds)),
		Rounds:              make([]RoundStat, 0, len(l.rounds)),
		AllFlagCandidates:   append([]string{}, opts.Candidates...),
		TaskTree:            opts.TaskTree,
	}
	if opts.Flag != "" {
		value := opts.Flag
		s.Flag.Value = &value
		s.Flag.Found = true
	}
	for _, r := range l.rounds {
		s.ConversationHistory = append(s.ConversationHistory, HistoryEntry{
			Round:        r.Number,
			Source:       r.Source,
			Input:        r.Input,
			Response:     r.Output,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			ToolsUsed:    r.ToolsUsed,
			Timestamp:    r.Timestamp,
		})
		s.Rounds = append(s.Rounds, RoundStat{
			Round:        r.Number,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			ToolsUsed:    r.ToolsUsed,
		})
	}
	return s
}

// SaveSummary atomically writes s as indented JSON.
func SaveSummary(path string, s Summary) error {
	if path == "" {
		return fmt.Errorf("summary path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// LoadSummary reads a summary written by SaveSummary.
func LoadSummary(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read summary: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode summary %s: %w", path, err)
	}
	return s, nil
}
