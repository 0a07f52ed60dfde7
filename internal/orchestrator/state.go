package orchestrator

import "github.com/codefionn/flagrunner/internal/llm"

// Phase is the controller's position within a round.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseToolDispatch
	PhaseRoundDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseToolDispatch:
		return "tool_dispatch"
	case PhaseRoundDone:
		return "round_done"
	default:
		return "unknown"
	}
}

// SessionState is the mutable per-session state owned by the controller.
type SessionState struct {
	// Round is the number of the last started round, 0 before the first.
	Round int
	// History is the chat memory replayed to the model.
	History []*llm.Message
	// LastToolResults are the normalized outputs of the last round's tools.
	LastToolResults []string
	// LastFlag is the last candidate found in any round.
	LastFlag string
	// LastResponse is the model text of the last round.
	LastResponse string
}

func (s *SessionState) historyChars() int {
	n := 0
	for _, m := range s.History {
		if m != nil {
			n += len(m.Content)
		}
	}
	return n
}

func (s *SessionState) keepLastMessages(n int) int {
	if len(s.History) <= n {
		return 0
	}
	dropped := len(s.History) - n
	s.History = append([]*llm.Message(nil), s.History[dropped:]...)
	return dropped
}
