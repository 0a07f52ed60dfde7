// Package orchestrator runs single solving rounds: one model exchange with
// task extraction, tool dispatch, flag detection and bookkeeping.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codefionn/flagrunner/internal/consts"
	"github.com/codefionn/flagrunner/internal/contextopt"
	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/ledger"
	"github.com/codefionn/flagrunner/internal/llm"
	"github.com/codefionn/flagrunner/internal/logger"
	"github.com/codefionn/flagrunner/internal/prompts"
	"github.com/codefionn/flagrunner/internal/tasktree"
	"github.com/codefionn/flagrunner/internal/tools"
)

// TruncationMarker is appended to inputs cut by the context safety valve.
const TruncationMarker = "\n\n... (content truncated due to size - focus on key information above)"

// Archiver persists rounds outside the process. store.Archive implements it.
type Archiver interface {
	RecordRound(ctx context.Context, sessionID string, r ledger.Round) error
	RecordCandidate(ctx context.Context, sessionID string, c flag.Candidate) error
}

// Limits bound the context sent to the model in one round.
type Limits struct {
	// TokenCeiling is the estimated token count that triggers truncation.
	TokenCeiling int
	// MaxInputChars bounds the truncated input, marker included.
	MaxInputChars int
	// HistoryKeep is the number of history messages kept after truncation.
	HistoryKeep int
}

// DefaultLimits returns the standard safety valve limits.
func DefaultLimits() Limits {
	return Limits{
		TokenCeiling:  consts.ContextTokenCeiling,
		MaxInputChars: consts.MaxInputChars,
		HistoryKeep:   consts.HistoryKeepOnOverflow,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.TokenCeiling <= 0 {
		l.TokenCeiling = d.TokenCeiling
	}
	if l.MaxInputChars <= 0 {
		l.MaxInputChars = d.MaxInputChars
	}
	if l.HistoryKeep <= 0 {
		l.HistoryKeep = d.HistoryKeep
	}
	return l
}

// Controller drives rounds for one session. It is not safe for concurrent use.
type Controller struct {
	client     llm.Client
	tree       *tasktree.Tree
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	optimizer  *contextopt.Optimizer
	detector   *flag.Detector
	ledger     *ledger.Ledger
	counter    llm.TokenCounter
	archive    Archiver
	sessionID  string
	challenge  prompts.Challenge

	limits       Limits
	toolTimeout  time.Duration
	nativeTools  bool
	systemPrompt string
	temperature  float64
	maxTokens    int

	state   SessionState
	phase   Phase
	onPhase func(round int, phase Phase)
	log     *logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithRegistry sets the tools available to the model.
func WithRegistry(r *tools.Registry) Option {
	return func(c *Controller) { c.registry = r }
}

// WithLimits sets the context safety valve limits. Zero fields keep their
// defaults.
func WithLimits(l Limits) Option {
	return func(c *Controller) { c.limits = l }
}

// WithToolTimeout sets the per-call tool deadline.
func WithToolTimeout(d time.Duration) Option {
	return func(c *Controller) { c.toolTimeout = d }
}

// WithOptimizer replaces the default context optimizer.
func WithOptimizer(o *contextopt.Optimizer) Option {
	return func(c *Controller) { c.optimizer = o }
}

// WithDetector shares a flag detector with the caller.
func WithDetector(d *flag.Detector) Option {
	return func(c *Controller) { c.detector = d }
}

// WithLedger shares a ledger with the caller.
func WithLedger(l *ledger.Ledger) Option {
	return func(c *Controller) { c.ledger = l }
}

// WithTokenCounter sets the counter used for round accounting.
func WithTokenCounter(tc llm.TokenCounter) Option {
	return func(c *Controller) { c.counter = tc }
}

// WithArchive mirrors every round and candidate into a.
func WithArchive(a Archiver, sessionID string) Option {
	return func(c *Controller) {
		c.archive = a
		c.sessionID = sessionID
	}
}

// WithChallenge sets the challenge the prompts refer to.
func WithChallenge(ch prompts.Challenge) Option {
	return func(c *Controller) { c.challenge = ch }
}

// WithNativeTools advertises tools through the provider's tool-calling API
// instead of the inline markup.
func WithNativeTools(enabled bool) Option {
	return func(c *Controller) { c.nativeTools = enabled }
}

// WithSystemPrompt overrides the generated system prompt.
func WithSystemPrompt(p string) Option {
	return func(c *Controller) { c.systemPrompt = p }
}

// WithGeneration sets sampling parameters for every model call.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(c *Controller) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// WithPhaseHook observes phase transitions.
func WithPhaseHook(fn func(round int, phase Phase)) Option {
	return func(c *Controller) { c.onPhase = fn }
}

// New creates a controller around an existing task tree.
func New(client llm.Client, tree *tasktree.Tree, opts ...Option) *Controller {
	c := &Controller{
		client:      client,
		tree:        tree,
		temperature: consts.DefaultTemperature,
		maxTokens:   consts.DefaultMaxTokens,
		log:         logger.Global().WithPrefix("round"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limits = c.limits.withDefaults()

	if c.tree == nil {
		c.tree = tasktree.New(c.challenge.Title, "")
	}
	if c.registry == nil {
		c.registry = tools.DefaultRegistry(tools.BuiltinOptions{})
	}
	if c.optimizer == nil {
		c.optimizer = contextopt.New(contextopt.DefaultConfig())
	}
	if c.detector == nil {
		c.detector = flag.NewDetector()
	}
	if c.ledger == nil {
		c.ledger = ledger.New()
	}
	if c.counter == nil {
		c.counter = llm.EstimateCounter{}
	}
	c.dispatcher = tools.NewDispatcher(c.registry, tools.WithRecorder(c.tree), tools.WithTimeout(c.toolTimeout))
	if c.systemPrompt == "" {
		c.systemPrompt = prompts.System(prompts.SystemData{
			Tools:       c.registry.Describe(),
			NativeTools: c.nativeTools,
		})
	}
	return c
}

// Round returns the number of the last started round.
func (c *Controller) Round() int { return c.state.Round }

// State returns the current phase.
func (c *Controller) State() Phase { return c.phase }

// Session returns a copy of the session state.
func (c *Controller) Session() SessionState {
	s := c.state
	s.History = append([]*llm.Message(nil), c.state.History...)
	s.LastToolResults = append([]string(nil), c.state.LastToolResults...)
	return s
}

func (c *Controller) Tree() *tasktree.Tree     { return c.tree }
func (c *Controller) Ledger() *ledger.Ledger   { return c.ledger }
func (c *Controller) Detector() *flag.Detector { return c.detector }
func (c *Controller) Challenge() prompts.Challenge {
	return c.challenge
}

func (c *Controller) setPhase(p Phase) {
	c.phase = p
	if c.onPhase != nil {
		c.onPhase(c.state.Round, p)
	}
}

// roundResult is what one round produced before bookkeeping.
type roundResult struct {
	response    string
	tools       []string
	toolResults []string
	failed      bool
}

// Interact runs one round and returns the model's text. Failures of the
// model, tools or persistence become content; the only error returned is a
// context that was done before the round started.
func (c *Controller) Interact(ctx context.Context, input string, source ledger.Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.state.Round++
	round := c.state.Round
	c.setPhase(PhaseActive)
	defer c.setPhase(PhaseIdle)

	c.log.Info("Round %d starting (source=%s, input=%d chars)", round, source, len(input))
	input = c.applySafetyValve(round, input)

	res := c.runRound(ctx, round, input)

	if err := c.saveTree(); err != nil {
		c.log.Warn("Round %d: failed to save task tree: %v", round, err)
	}

	scan := res.response
	if len(res.toolResults) > 0 {
		scan += " " + strings.Join(res.toolResults, " ")
	}
	found := c.detector.Detect(round, scan)
	values := make([]string, 0, len(found))
	for _, cand := range found {
		values = append(values, cand.Value)
	}
	if len(found) > 0 {
		c.state.LastFlag = found[len(found)-1].Value
		c.log.Info("Round %d: flag candidates %v", round, values)
	}

	rec := ledger.Round{
		Number:       round,
		Input:        input,
		Output:       res.response,
		InputTokens:  c.counter.Count(input),
		OutputTokens: c.counter.Count(res.response),
		ToolsUsed:    res.tools,
		ToolResults:  res.toolResults,
		Flags:        values,
		Source:       source,
		Failed:       res.failed,
		Timestamp:    time.Now(),
	}
	if err := c.ledger.Append(rec); err != nil {
		c.log.Error("Round %d: failed to record round: %v", round, err)
	}

	c.state.LastToolResults = res.toolResults
	c.state.LastResponse = res.response
	if !res.failed {
		c.state.History = append(c.state.History,
			&llm.Message{Role: llm.RoleUser, Content: input},
			&llm.Message{Role: llm.RoleAssistant, Content: res.response},
		)
	}
	c.archiveRound(ctx, rec, found)

	c.setPhase(PhaseRoundDone)
	c.log.Info("Round %d done: tools=%d, tokens=%d/%d", round, len(res.tools), rec.InputTokens, rec.OutputTokens)
	return res.response, nil
}

// runRound performs the model exchange and tool dispatch. A panic is
// reported as a failed round.
func (c *Controller) runRound(ctx context.Context, round int, input string) (res roundResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Round %d panicked: %v\n%s", round, r, debug.Stack())
			res = roundResult{response: fmt.Sprintf("Round %d failed: panic: %v", round, r), failed: true}
		}
	}()

	req := &llm.CompletionRequest{
		Messages:     append(append([]*llm.Message(nil), c.state.History...), &llm.Message{Role: llm.RoleUser, Content: input}),
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		SystemPrompt: c.systemPrompt,
	}
	if c.nativeTools {
		req.Tools = c.registry.Specs()
	}

	resp, err := c.client.CompleteWithRequest(ctx, req)
	if err != nil {
		c.log.Error("Round %d: model call failed: %v", round, err)
		return roundResult{response: fmt.Sprintf("Round %d failed: %v", round, err), failed: true}
	}
	res.response = resp.Content

	calls := nativeCalls(resp.ToolCalls)

	n := c.tree.ExtractTasksFromResponse(resp.Content)
	if n == 0 {
		n = c.applyNativeReports(round, calls)
	}
	if n == 0 {
		c.log.Warn("Round %d: no task status updates found in response", round)
	} else {
		c.log.Debug("Round %d: %d task updates", round, n)
	}

	if len(calls) == 0 && tools.HasInlineMarkup(resp.Content) {
		calls = tools.ParseInlineCalls(resp.Content)
	}
	if len(calls) == 0 {
		return res
	}

	c.setPhase(PhaseToolDispatch)
	outcomes := c.dispatcher.Dispatch(ctx, calls)
	c.setPhase(PhaseActive)

	res.tools = make([]string, 0, len(outcomes))
	res.toolResults = make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		res.tools = append(res.tools, o.Call.Name)
		res.toolResults = append(res.toolResults, o.Observation)
	}
	return res
}

// applyNativeReports applies task reports that arrived as structured
// reporter tool calls instead of inline markup.
func (c *Controller) applyNativeReports(round int, calls []tools.Call) int {
	count := 0
	for _, call := range calls {
		if call.Name != tasktree.ReporterTool {
			continue
		}
		n, err := c.tree.ApplyReport(call.Input)
		if err != nil {
			c.log.Warn("Round %d: skipping malformed task report: %v", round, err)
		}
		count += n
	}
	return count
}

func nativeCalls(calls []llm.ToolCall) []tools.Call {
	if len(calls) == 0 {
		return nil
	}
	out := make([]tools.Call, 0, len(calls))
	for _, tc := range calls {
		out = append(out, tools.Call{ID: tc.ID, Name: tc.Name, Input: tc.Input()})
	}
	return out
}

// applySafetyValve cuts the input and the history when the estimated
// context exceeds the token ceiling.
func (c *Controller) applySafetyValve(round int, input string) string {
	estimated := (len(input) + c.state.historyChars()) / consts.CharsPerToken
	if estimated <= c.limits.TokenCeiling {
		return input
	}
	c.log.Warn("Round %d: content too large (~%d tokens), truncating", round, estimated)

	if len(input) > c.limits.MaxInputChars {
		input = truncateInput(input, c.limits.MaxInputChars)
		c.log.Info("Round %d: input truncated to %d chars", round, len(input))
	}
	if dropped := c.state.keepLastMessages(c.limits.HistoryKeep); dropped > 0 {
		c.log.Info("Round %d: dropped %d old history messages", round, dropped)
	}
	return input
}

// truncateInput cuts input so that, marker included, it fits in limit bytes.
// Limits too small for the marker get a plain cut.
func truncateInput(input string, limit int) string {
	keep := limit - len(TruncationMarker)
	if keep <= 0 {
		return cutBytes(input, limit)
	}
	return cutBytes(input, keep) + TruncationMarker
}

// cutBytes shortens s to at most n bytes without splitting a rune.
func cutBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (c *Controller) saveTree() error {
	if c.tree.StoragePath() == "" {
		return nil
	}
	return c.tree.Save()
}

func (c *Controller) archiveRound(ctx context.Context, rec ledger.Round, found []flag.Candidate) {
	if c.archive == nil {
		return
	}
	// bookkeeping continues even when the round's context was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := c.archive.RecordRound(ctx, c.sessionID, rec); err != nil {
		c.log.Warn("Round %d: failed to archive round: %v", rec.Number, err)
	}
	for _, cand := range found {
		if err := c.archive.RecordCandidate(ctx, c.sessionID, cand); err != nil {
			c.log.Warn("Round %d: failed to archive candidate: %v", rec.Number, err)
		}
	}
}
