// Package progress carries session progress from the runner to the operator.
package progress

import "strings"

type ReportMode int

const (
	// ReportNoStatus streams only (no status indicator).
	ReportNoStatus ReportMode = iota
	// ReportJustStatus reports to status indicator only.
	ReportJustStatus
	// ReportStreamAndStatus reports to both stream and status indicator.
	ReportStreamAndStatus
)

// Stage says which part of a round produced an update.
type Stage string

const (
	StageRound    Stage = "round"
	StageResponse Stage = "response"
	StageFlag     Stage = "flag"
	StageVerdict  Stage = "verdict"
	StageDone     Stage = "done"
)

// Update is one progress message of a session.
type Update struct {
	// Round is the round the update belongs to, 0 outside rounds.
	Round int
	Stage Stage
	// Message is the content to show the operator.
	Message string
	// AddNewLine appends a newline to Message if one is not already present.
	AddNewLine bool
	// Mode controls where the message should be surfaced.
	Mode ReportMode
}

// ShouldStream returns true if the update belongs in the transcript.
func (u Update) ShouldStream() bool {
	return u.Mode == ReportNoStatus || u.Mode == ReportStreamAndStatus
}

// ShouldStatus returns true if the update should be shown in a status line.
func (u Update) ShouldStatus() bool {
	return u.Mode == ReportJustStatus || u.Mode == ReportStreamAndStatus
}

// Callback receives progress updates.
type Callback func(Update) error

// Normalize applies the requested newline handling.
func Normalize(update Update) Update {
	if update.AddNewLine && update.Message != "" && !strings.HasSuffix(update.Message, "\n") {
		update.Message += "\n"
	}
	return update
}

// Dispatch normalizes and sends the update if the callback is set.
func Dispatch(cb Callback, update Update) error {
	if cb == nil {
		return nil
	}
	return cb(Normalize(update))
}
