package orchestrator

import (
	"strings"

	"github.com/codefionn/flagrunner/internal/contextopt"
	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/prompts"
)

// envelopePrefix marks raw tool envelopes that carry no information beyond
// what the task tree already shows.
const envelopePrefix = `{"success"`

var humanInputIndicators = []string{
	"need human input",
	"cannot determine",
	"please specify",
	"need clarification",
	"manual intervention required",
}

// InitialPrompt renders the first input of the session.
func (c *Controller) InitialPrompt() string {
	return prompts.Initial(c.challenge)
}

// ContinuePrompt builds the next input from the task context and results.
// The newest result is always resent; recent snapshots add the other
// results, full snapshots add the results the tree cannot show in full.
func (c *Controller) ContinuePrompt(results []string) string {
	snap := c.optimizer.Optimize(c.tree, c.state.Round, results)
	c.log.Debug("Context strategy: %s", contextopt.Stats(snap))

	var selected []string
	if len(results) > 0 {
		latest := results[len(results)-1]
		if informative(latest) {
			selected = append(selected, latest)
		}
		switch snap.Kind {
		case contextopt.KindRecent:
			for _, r := range results[:len(results)-1] {
				if informative(r) {
					selected = append(selected, r)
				}
			}
		case contextopt.KindFull:
			for _, r := range snap.GuaranteedResults {
				if r != latest {
					selected = append(selected, r)
				}
			}
		}
	}

	return prompts.Continue(prompts.ContinueData{
		Title:       c.challenge.Title,
		Category:    c.challenge.Category,
		TaskSummary: snap.Content,
		Results:     selected,
	})
}

func informative(result string) bool {
	return strings.TrimSpace(result) != "" && !strings.HasPrefix(result, envelopePrefix)
}

// NextInput builds the agent's input for the following round from the
// optimized task context and the last round's results.
func (c *Controller) NextInput() string {
	snap := c.optimizer.Optimize(c.tree, c.state.Round, c.state.LastToolResults)

	var results []string
	switch {
	case len(c.state.LastToolResults) > 0:
		results = c.state.LastToolResults
	case c.lastResponse() != "":
		results = []string{prompts.DetermineNext}
	}
	return "Recent Progress:\n" + snap.Content + "\n\n" + prompts.NextStep(results)
}

func (c *Controller) lastResponse() string {
	if last, ok := c.ledger.Last(); ok {
		return last.Output
	}
	return ""
}

// HumanFeedbackPrompt wraps feedback typed by the operator.
func (c *Controller) HumanFeedbackPrompt(feedback string) string {
	return prompts.HumanFeedback(feedback)
}

// VerificationPrompt asks the model to confirm the final flag.
func (c *Controller) VerificationPrompt() string {
	return prompts.Verification(c.state.LastToolResults)
}

// NeedsHumanInput reports whether the model asked for the operator.
func NeedsHumanInput(response string) bool {
	lower := strings.ToLower(response)
	for _, indicator := range humanInputIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// ExtractFlagFromHistory returns the newest canonical flag in the ledger,
// checking each round's response before its input.
func (c *Controller) ExtractFlagFromHistory() (string, bool) {
	rounds := c.ledger.Rounds()
	for i := len(rounds) - 1; i >= 0; i-- {
		if v, ok := flag.FindCanonical(rounds[i].Output); ok {
			return v, true
		}
		if v, ok := flag.FindCanonical(rounds[i].Input); ok {
			return v, true
		}
	}
	return "", false
}

// FlagFromResults returns the newest canonical flag in the last round's
// tool results.
func (c *Controller) FlagFromResults() (string, bool) {
	results := c.state.LastToolResults
	for i := len(results) - 1; i >= 0; i-- {
		if v, ok := flag.FindCanonical(results[i]); ok {
			return v, true
		}
	}
	return "", false
}

// FinalCandidate looks for the flag to verify: tool results first, then
// the conversation.
func (c *Controller) FinalCandidate() (string, bool) {
	if v, ok := c.FlagFromResults(); ok {
		return v, true
	}
	return c.ExtractFlagFromHistory()
}
