// Package ledger records every round of a solving session and renders the
// session summary.
package ledger

import (
	"fmt"
	"time"
)

// Source tells where a round's input came from.
type Source string

const (
	SourceAgent Source = "agent"
	SourceHuman Source = "human"
)

// ParseSource maps anything other than "human" to SourceAgent.
func ParseSource(s string) Source {
	if Source(s) == SourceHuman {
		return SourceHuman
	}
	return SourceAgent
}

// Round is the immutable record of one model exchange.
type Round struct {
	Number       int       `json:"round"`
	Input        string    `json:"input"`
	Output       string    `json:"output"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	ToolsUsed    []string  `json:"tools_used"`
	ToolResults  []string  `json:"tool_results,omitempty"`
	Flags        []string  `json:"flags,omitempty"`
	Source       Source    `json:"source"`
	Failed       bool      `json:"failed,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TotalTokens is the round's input plus output tokens.
func (r Round) TotalTokens() int { return r.InputTokens + r.OutputTokens }

// Ledger is the ordered list of rounds. Round numbers strictly increase.
type Ledger struct {
	rounds []Round
}

// New creates an empty ledger.
func New() *Ledger { return &Ledger{} }

// Append records a round. Numbers must be strictly greater than the
// previous round's.
func (l *Ledger) Append(r Round) error {
	if r.Number <= 0 {
		return fmt.Errorf("invalid round number %d", r.Number)
	}
	if last, ok := l.Last(); ok && r.Number <= last.Number {
		return fmt.Errorf("round %d recorded after round %d", r.Number, last.Number)
	}
	if r.ToolsUsed == nil {
		r.ToolsUsed = []string{}
	}
	if r.Source == "" {
		r.Source = SourceAgent
	}
	l.rounds = append(l.rounds, r)
	return nil
}

// Len returns the number of recorded rounds.
func (l *Ledger) Len() int { return len(l.rounds) }

// Rounds returns a copy of the recorded rounds, oldest first.
func (l *Ledger) Rounds() []Round {
	return append([]Round(nil), l.rounds...)
}

// Last returns the newest round.
func (l *Ledger) Last() (Round, bool) {
	if len(l.rounds) == 0 {
		return Round{}, false
	}
	return l.rounds[len(l.rounds)-1], true
}

// Totals sums the token counts over all rounds.
func (l *Ledger) Totals() (input, output int) {
	for _, r := range l.rounds {
		input += r.InputTokens
		output += r.OutputTokens
	}
	return input, output
}
