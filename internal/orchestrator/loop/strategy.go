package loop

import "github.com/codefionn/flagrunner/internal/ledger"

// DefaultStrategy implements the standard session strategy: run until a flag
// is accepted or the round budget is spent, answering rejections and
// operator feedback first and otherwise continuing from the tool results.
type DefaultStrategy struct {
	config *Config
}

// NewDefaultStrategy creates a new DefaultStrategy with the specified configuration
func NewDefaultStrategy(config *Config) *DefaultStrategy {
	if config == nil {
		config = DefaultConfig()
	}
	return &DefaultStrategy{config: config}
}

// ShouldContinue determines if another round should run.
func (s *DefaultStrategy) ShouldContinue(state State, outcome *Outcome) bool {
	if outcome != nil && outcome.Accepted != "" {
		return false
	}
	return !state.HasReachedLimit()
}

// NextInput chooses the next round's input. Rejection feedback and operator
// text are sent as human input.
func (s *DefaultStrategy) NextInput(ctl Controller, outcome *Outcome) Input {
	if outcome != nil {
		if outcome.Feedback != "" {
			return Input{Text: outcome.Feedback, Source: ledger.SourceHuman}
		}
		if outcome.HumanFeedback != "" {
			return Input{Text: ctl.HumanFeedbackPrompt(outcome.HumanFeedback), Source: ledger.SourceHuman}
		}
		if len(outcome.ToolResults) > 0 {
			return Input{Text: ctl.ContinuePrompt(outcome.ToolResults), Source: ledger.SourceAgent}
		}
	}
	return Input{Text: ctl.NextInput(), Source: ledger.SourceAgent}
}

// GetResult returns the Result based on how the run stopped.
func (s *DefaultStrategy) GetResult(state State, lastOutcome *Outcome, terminatedEarly bool) *Result {
	result := &Result{RoundsExecuted: state.Round()}

	switch {
	case lastOutcome != nil && lastOutcome.Accepted != "":
		result.Success = true
		result.Verified = true
		result.Flag = lastOutcome.Accepted
		result.TerminationReason = "flag accepted"
	case terminatedEarly:
		result.TerminationReason = "terminated by external signal"
	case state.HasReachedLimit():
		result.HitRoundLimit = true
		result.TerminationReason = "round budget exhausted"
	default:
		result.TerminationReason = "completed"
	}
	return result
}
