package orchestrator

import "github.com/codefionn/flagrunner/internal/ledger"

// Final describes how a session ended.
type Final struct {
	Mode     string
	Flag     string
	Verified bool
}

// Summary builds the persisted session document.
func (c *Controller) Summary(final Final) ledger.Summary {
	return c.ledger.Summary(ledger.SummaryOptions{
		SessionID:      c.sessionID,
		ChallengeTitle: c.challenge.Title,
		Mode:           final.Mode,
		Flag:           final.Flag,
		Verified:       final.Verified,
		Candidates:     c.detector.Values(),
		TaskTree:       c.tree.Display(),
	})
}

// SaveSummary writes the session document to path and saves the tree.
func (c *Controller) SaveSummary(path string, final Final) error {
	if err := c.saveTree(); err != nil {
		c.log.Warn("Failed to save task tree at session end: %v", err)
	}
	return ledger.SaveSummary(path, c.Summary(final))
}
