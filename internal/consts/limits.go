package consts

import "time"

// Round budget
const (
	// DefaultMaxRounds is the number of rounds a session may consume before it stops.
	DefaultMaxRounds = 30
)

// Prompt size guard applied before every model call
const (
	// ContextTokenCeiling is the estimated token count above which the input is cut down.
	ContextTokenCeiling = 120000
	// MaxInputChars bounds a cut-down input, truncation marker included.
	MaxInputChars = 100000
	// HistoryKeepOnOverflow is how many history messages survive an overflow.
	HistoryKeepOnOverflow = 10
	// CharsPerToken is the divisor used by the cheap token estimate.
	CharsPerToken = 4
)

// Context optimizer defaults
const (
	FullContextInterval = 5
	MaxRecentTasks      = 3
	// FewTasksThreshold forces full context while the tree is this small.
	FewTasksThreshold = 3
	// GuaranteeThreshold is the length above which the newest result must be resent in full.
	GuaranteeThreshold = 80
	// ImportantResultLength marks any result longer than this as important.
	ImportantResultLength = 200
	// ImportantWindow is how many results before the newest one are checked for importance.
	ImportantWindow = 2
	// EmptyContextTokens is the fixed estimate for an empty tree.
	EmptyContextTokens = 20
)

// Task tree storage limits
const (
	SubtaskInputLimit  = 200
	SubtaskResultLimit = 500
	// PreviewLength bounds result previews in displays and recent context.
	PreviewLength = 80
)

// LLM defaults
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

// Timeouts
const (
	Timeout10Seconds = 10 * time.Second
	Timeout60Seconds = 60 * time.Second
	Timeout2Minutes  = 2 * time.Minute
)

// Retry limits
const (
	// DefaultMaxRetries is the number of retries after the first model call attempt.
	DefaultMaxRetries = 3
)
