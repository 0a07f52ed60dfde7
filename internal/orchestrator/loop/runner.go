package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/ledger"
	"github.com/codefionn/flagrunner/internal/logger"
	"github.com/codefionn/flagrunner/internal/orchestrator"
	"github.com/codefionn/flagrunner/internal/progress"
)

const manualFlagPrompt = "No flag was confirmed. Enter the flag manually (picoCTF{...}) or leave empty to skip"

// Runner executes rounds until the strategy stops it.
type Runner struct {
	ctl        Controller
	config     *Config
	strategy   Strategy
	validator  *flag.Validator
	human      Human
	progressCb progress.Callback
	log        *logger.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithConfig sets the run configuration.
func WithConfig(cfg *Config) RunnerOption {
	return func(r *Runner) {
		if cfg != nil {
			r.config = cfg
		}
	}
}

// WithStrategy replaces the DefaultStrategy.
func WithStrategy(s Strategy) RunnerOption {
	return func(r *Runner) {
		if s != nil {
			r.strategy = s
		}
	}
}

// WithValidator sets the flag validator. Without one every candidate that
// is not a placeholder is accepted.
func WithValidator(v *flag.Validator) RunnerOption {
	return func(r *Runner) { r.validator = v }
}

// WithHuman connects the operator.
func WithHuman(h Human) RunnerOption {
	return func(r *Runner) { r.human = h }
}

// WithProgress receives progress updates.
func WithProgress(cb progress.Callback) RunnerOption {
	return func(r *Runner) { r.progressCb = cb }
}

// NewRunner creates a runner around ctl.
func NewRunner(ctl Controller, opts ...RunnerOption) *Runner {
	r := &Runner{
		ctl:    ctl,
		config: DefaultConfig(),
		log:    logger.Global().WithPrefix("loop"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.strategy == nil {
		r.strategy = NewDefaultStrategy(r.config)
	}
	if r.validator == nil {
		r.validator = flag.NewValidator(nil)
	}
	return r
}

// Run executes rounds starting from start, or from the controller's initial
// prompt when start is blank. The error is non-nil only when ctx ended the
// run; the partial result is returned alongside it.
func (r *Runner) Run(ctx context.Context, start string) (*Result, error) {
	state := NewDefaultState(r.config)
	input := Input{Text: start, Source: ledger.SourceAgent}
	if strings.TrimSpace(input.Text) == "" {
		input.Text = r.ctl.InitialPrompt()
	}

	offered := make(map[string]bool)
	var (
		rejected    []string
		lastOutcome *Outcome
		terminated  bool
		runErr      error
	)

	for {
		if err := ctx.Err(); err != nil {
			terminated, runErr = true, err
			break
		}
		if state.HasReachedLimit() {
			break
		}

		round := state.Increment()
		r.report(progress.Update{
			Round:   round,
			Stage:   progress.StageRound,
			Message: fmt.Sprintf("Round %d/%d", round, state.MaxRounds()),
			Mode:    progress.ReportJustStatus,
		})

		response, err := r.ctl.Interact(ctx, input.Text, input.Source)
		if err != nil {
			terminated, runErr = true, err
			break
		}
		r.report(progress.Update{Round: round, Stage: progress.StageResponse, Message: response, AddNewLine: true})

		outcome := r.inspect(ctx, response, offered)
		rejected = append(rejected, outcome.rejected...)
		lastOutcome = &outcome.Outcome

		if !r.strategy.ShouldContinue(state, lastOutcome) {
			break
		}
		if lastOutcome.Feedback == "" {
			r.askWhenStuck(ctx, lastOutcome)
		}
		input = r.strategy.NextInput(r.ctl, lastOutcome)
	}

	result := r.strategy.GetResult(state, lastOutcome, terminated)
	result.Rejected = rejected
	if !result.Success && !terminated {
		r.finalize(ctx, result, offered)
	}

	r.log.Info("Session finished after %d rounds: %s (flag=%q, verified=%v)",
		result.RoundsExecuted, result.TerminationReason, result.Flag, result.Verified)
	r.report(progress.Update{Stage: progress.StageDone, Message: result.TerminationReason, Mode: progress.ReportStreamAndStatus, AddNewLine: true})
	return result, runErr
}

type inspection struct {
	Outcome
	rejected []string
}

// inspect collects the round's results and verifies its new candidates.
func (r *Runner) inspect(ctx context.Context, response string, offered map[string]bool) inspection {
	var out inspection
	out.Response = response

	rec, ok := r.ctl.Ledger().Last()
	if !ok {
		return out
	}
	out.Round = rec.Number
	out.ToolResults = rec.ToolResults

	for _, value := range rec.Flags {
		if flag.IsPlaceholder(value) {
			r.log.Debug("Round %d: ignoring placeholder %s", rec.Number, value)
			continue
		}
		out.Candidates = append(out.Candidates, value)
		if offered[value] {
			continue
		}
		offered[value] = true
		r.report(progress.Update{Round: rec.Number, Stage: progress.StageFlag, Message: "Flag candidate: " + value, Mode: progress.ReportStreamAndStatus, AddNewLine: true})

		verdict, err := r.validator.Verify(ctx, value)
		if err != nil {
			r.log.Warn("Round %d: could not verify %s: %v", rec.Number, value, err)
			continue
		}
		if verdict.Accepted {
			out.Accepted = verdict.Flag
			r.report(progress.Update{Round: rec.Number, Stage: progress.StageVerdict, Message: "Flag accepted: " + verdict.Flag, Mode: progress.ReportStreamAndStatus, AddNewLine: true})
			break
		}
		out.rejected = append(out.rejected, value)
		out.Feedback = verdict.Feedback
		r.report(progress.Update{Round: rec.Number, Stage: progress.StageVerdict, Message: "Flag rejected: " + value, Mode: progress.ReportStreamAndStatus, AddNewLine: true})
	}
	return out
}

// askWhenStuck gathers operator text when the model asked for help.
func (r *Runner) askWhenStuck(ctx context.Context, outcome *Outcome) {
	if !r.config.AskHumanWhenStuck || r.human == nil || !orchestrator.NeedsHumanInput(outcome.Response) {
		return
	}
	text, err := r.human.Ask(ctx, "The model asked for help. Enter results or instructions (empty to let it continue)")
	if err != nil {
		r.log.Warn("Round %d: failed to read operator input: %v", outcome.Round, err)
		return
	}
	outcome.HumanFeedback = strings.TrimSpace(text)
}

// finalize looks for a last candidate once the rounds are spent and falls
// back to manual entry.
func (r *Runner) finalize(ctx context.Context, result *Result, offered map[string]bool) {
	if cand, ok := r.ctl.FinalCandidate(); ok && !flag.IsPlaceholder(cand) {
		result.Flag = cand
		if !offered[cand] {
			offered[cand] = true
			verdict, err := r.validator.Verify(ctx, cand)
			switch {
			case err != nil:
				r.log.Warn("Could not verify final candidate %s: %v", cand, err)
			case verdict.Accepted:
				result.Success, result.Verified = true, true
				result.TerminationReason += ", final candidate accepted"
				return
			default:
				result.Rejected = append(result.Rejected, cand)
			}
		}
	}

	if !r.config.ManualFlagEntry || r.human == nil {
		return
	}
	text, err := r.human.Ask(ctx, manualFlagPrompt)
	if err != nil {
		r.log.Warn("Failed to read manual flag: %v", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !strings.HasPrefix(text, "picoCTF{") || !strings.HasSuffix(text, "}") {
		r.log.Warn("Ignoring manual flag with invalid format: %q", text)
		return
	}
	result.Flag = text
	result.Success, result.Verified = true, true
	result.TerminationReason += ", flag entered manually"
}

func (r *Runner) report(u progress.Update) {
	if err := progress.Dispatch(r.progressCb, u); err != nil {
		r.log.Debug("progress callback failed: %v", err)
	}
}
