package loop

import (
	"testing"

	"github.com/codefionn/flagrunner/internal/ledger"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRounds != 30 {
		t.Errorf("Expected MaxRounds = 30, got %d", config.MaxRounds)
	}
	if !config.AskHumanWhenStuck {
		t.Error("Expected AskHumanWhenStuck = true")
	}
	if !config.ManualFlagEntry {
		t.Error("Expected ManualFlagEntry = true")
	}
}

func TestDefaultState(t *testing.T) {
	state := NewDefaultState(&Config{MaxRounds: 2})

	if state.Round() != 0 {
		t.Errorf("Initial round should be 0, got %d", state.Round())
	}
	if state.HasReachedLimit() {
		t.Error("Fresh state should not be at the limit")
	}
	if state.Increment() != 1 {
		t.Error("Increment should return 1")
	}
	state.Increment()
	if !state.HasReachedLimit() {
		t.Error("State should be at the limit after 2 rounds")
	}
}

func TestDefaultStateFallsBackToDefaultBudget(t *testing.T) {
	if got := NewDefaultState(&Config{}).MaxRounds(); got != 30 {
		t.Errorf("MaxRounds = %d, want 30", got)
	}
	if got := NewDefaultState(nil).MaxRounds(); got != 30 {
		t.Errorf("MaxRounds = %d, want 30", got)
	}
}

func TestDefaultStrategyShouldContinue(t *testing.T) {
	s := NewDefaultStrategy(nil)

	tests := []struct {
		name    string
		state   *MockState
		outcome *Outcome
		want    bool
	}{
		{"within budget", &MockState{MockRound: 3, MockMaxRounds: 30}, &Outcome{}, true},
		{"budget spent", &MockState{MockRound: 30, MockMaxRounds: 30}, &Outcome{}, false},
		{"flag accepted", &MockState{MockRound: 3, MockMaxRounds: 30}, &Outcome{Accepted: "picoCTF{x1}"}, false},
		{"no outcome yet", &MockState{MockRound: 0, MockMaxRounds: 30}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ShouldContinue(tt.state, tt.outcome); got != tt.want {
				t.Errorf("ShouldContinue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultStrategyGetResult(t *testing.T) {
	s := NewDefaultStrategy(nil)

	r := s.GetResult(&MockState{MockRound: 4, MockMaxRounds: 30}, &Outcome{Accepted: "picoCTF{ok}"}, false)
	if !r.Success || !r.Verified || r.Flag != "picoCTF{ok}" || r.RoundsExecuted != 4 {
		t.Errorf("unexpected accepted result: %+v", r)
	}

	r = s.GetResult(&MockState{MockRound: 30, MockMaxRounds: 30}, &Outcome{}, false)
	if r.Success || !r.HitRoundLimit {
		t.Errorf("unexpected budget result: %+v", r)
	}

	r = s.GetResult(&MockState{MockRound: 1, MockMaxRounds: 30}, &Outcome{}, true)
	if r.TerminationReason != "terminated by external signal" {
		t.Errorf("TerminationReason = %q", r.TerminationReason)
	}
}

func TestDefaultStrategyNextInput(t *testing.T) {
	ctl := newController(t, nil)
	s := NewDefaultStrategy(nil)

	in := s.NextInput(ctl, &Outcome{Feedback: "rejected", ToolResults: []string{"x"}})
	if in.Text != "rejected" || in.Source != ledger.SourceHuman {
		t.Errorf("feedback input = %+v", in)
	}

	in = s.NextInput(ctl, &Outcome{HumanFeedback: "try port 1337"})
	if in.Source != ledger.SourceHuman || in.Text != ctl.HumanFeedbackPrompt("try port 1337") {
		t.Errorf("human input = %+v", in)
	}

	in = s.NextInput(ctl, &Outcome{ToolResults: []string{"ELF 64-bit"}})
	if in.Source != ledger.SourceAgent || in.Text != ctl.ContinuePrompt([]string{"ELF 64-bit"}) {
		t.Errorf("continue input = %+v", in)
	}

	in = s.NextInput(ctl, &Outcome{})
	if in.Source != ledger.SourceAgent || in.Text != ctl.NextInput() {
		t.Errorf("next-step input = %+v", in)
	}
}
