// Package loop drives a solving session: repeated rounds within a round
// budget, with flag verification after every round.
//
// The Runner owns control flow, a Strategy chooses the next input and the
// final result, and State tracks the round budget:
//
//	runner := loop.NewRunner(controller,
//	    loop.WithConfig(loop.DefaultConfig()),
//	    loop.WithValidator(flag.NewValidator(confirmer)),
//	)
//	result, err := runner.Run(ctx, controller.InitialPrompt())
package loop

import (
	"context"

	"github.com/codefionn/flagrunner/internal/consts"
	"github.com/codefionn/flagrunner/internal/ledger"
)

// Controller is the round engine the runner drives.
// *orchestrator.Controller implements it.
type Controller interface {
	Interact(ctx context.Context, input string, source ledger.Source) (string, error)
	InitialPrompt() string
	ContinuePrompt(results []string) string
	NextInput() string
	HumanFeedbackPrompt(feedback string) string
	FinalCandidate() (string, bool)
	Ledger() *ledger.Ledger
}

// Human asks the operator for free text. An empty answer means no input.
type Human interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// HumanFunc adapts a function to Human.
type HumanFunc func(ctx context.Context, prompt string) (string, error)

func (f HumanFunc) Ask(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// State tracks the round budget of one run.
type State interface {
	// Round returns the number of rounds run so far.
	Round() int

	// Increment advances the round counter and returns the new count.
	Increment() int

	// MaxRounds returns the round budget.
	MaxRounds() int

	// HasReachedLimit returns true once the budget is spent.
	HasReachedLimit() bool
}

// Outcome is what the runner learned from one round.
type Outcome struct {
	Round       int
	Response    string
	ToolResults []string
	// Candidates are the non-placeholder flags found this round.
	Candidates []string
	// Accepted is set when a candidate was confirmed this round.
	Accepted string
	// Feedback is the rejection prompt for a refused candidate.
	Feedback string
	// HumanFeedback is operator text gathered after the round.
	HumanFeedback string
}

// Input is the text of the next round and who wrote it.
type Input struct {
	Text   string
	Source ledger.Source
}

// Strategy decides how the session proceeds.
type Strategy interface {
	// ShouldContinue reports whether another round should run.
	ShouldContinue(state State, outcome *Outcome) bool

	// NextInput chooses the input of the next round.
	NextInput(ctl Controller, outcome *Outcome) Input

	// GetResult builds the final result once the run stops.
	GetResult(state State, lastOutcome *Outcome, terminatedEarly bool) *Result
}

// Result represents the final outcome of a session.
type Result struct {
	// Success is true when a flag was accepted.
	Success bool

	// Flag is the accepted flag, or the best unverified candidate.
	Flag string

	// Verified is true when the flag passed the confirmer or was typed by
	// the operator.
	Verified bool

	// TerminationReason describes why the run stopped.
	TerminationReason string

	// RoundsExecuted is the number of rounds this run performed.
	RoundsExecuted int

	// HitRoundLimit is true if the round budget ran out.
	HitRoundLimit bool

	// Rejected lists candidates the confirmer refused.
	Rejected []string
}

// Config contains configuration options for a run.
type Config struct {
	// MaxRounds is the round budget (default: 30)
	MaxRounds int

	// AskHumanWhenStuck consults the Human when the model asks for help.
	AskHumanWhenStuck bool

	// ManualFlagEntry lets the operator type the flag when none was accepted.
	ManualFlagEntry bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxRounds:         consts.DefaultMaxRounds,
		AskHumanWhenStuck: true,
		ManualFlagEntry:   true,
	}
}
