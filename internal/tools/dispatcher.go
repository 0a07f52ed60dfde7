package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codefionn/flagrunner/internal/consts"
	"github.com/codefionn/flagrunner/internal/logger"
)

// Call is one tool invocation resolved from a model response.
type Call struct {
	ID    string
	Name  string
	Input string
	// Observation is set when the call was already executed by the model
	// provider and only its raw result needs normalizing.
	Observation *string
}

// Outcome is the normalized result of one call.
type Outcome struct {
	Call        Call
	Observation string
	Duration    time.Duration
	// Err is set when the call failed at the dispatcher level (unknown tool,
	// timeout, panic). Tool-reported failures only show in Observation.
	Err error
}

// Recorder receives every dispatched call. The task tree implements it.
type Recorder interface {
	AddToolResult(tool, input, result string) (int, bool)
}

// ErrToolTimeout is reported when a tool exceeds its deadline.
var ErrToolTimeout = errors.New("tool timed out")

// Dispatcher runs calls sequentially against a registry.
type Dispatcher struct {
	registry *Registry
	recorder Recorder
	timeout  time.Duration
	log      *logger.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithRecorder forwards every outcome to r.
func WithRecorder(r Recorder) DispatcherOption {
	return func(disp *Dispatcher) { disp.recorder = r }
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	d := &Dispatcher{
		registry: registry,
		timeout:  consts.Timeout60Seconds,
		log:      logger.Global().WithPrefix("tools"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Timeout returns the per-call deadline.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Dispatch runs calls in order and returns one outcome per call. It never
// fails as a whole; per-call failures become "ERROR: ..." observations.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []Call) []Outcome {
	outcomes := make([]Outcome, 0, len(calls))
	for _, call := range calls {
		start := time.Now()
		out := d.dispatchOne(ctx, call)
		out.Duration = time.Since(start)

		if out.Err != nil {
			d.log.Warn("%s failed after %s: %v", call.Name, out.Duration.Round(time.Millisecond), out.Err)
		} else {
			d.log.Debug("%s finished in %s (%d chars)", call.Name, out.Duration.Round(time.Millisecond), len(out.Observation))
		}

		if d.recorder != nil {
			d.recorder.AddToolResult(call.Name, call.Input, out.Observation)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call Call) Outcome {
	if call.Observation != nil {
		return Outcome{Call: call, Observation: NormalizeObservation(*call.Observation)}
	}

	handler, err := d.registry.Lookup(call.Name)
	if err != nil {
		return Outcome{
			Call:        call,
			Observation: fmt.Sprintf("ERROR: Tool '%s' not found", call.Name),
			Err:         err,
		}
	}

	if err := ctx.Err(); err != nil {
		return Outcome{Call: call, Observation: executionFailed(err), Err: err}
	}

	d.log.Debug("executing %s with input: %s", call.Name, preview(call.Input, 100))
	result, err := d.invoke(ctx, handler, call.Input)
	if err != nil {
		return Outcome{Call: call, Observation: executionFailed(err), Err: err}
	}
	observation := NormalizeObservation(result.Encode())
	if observation == "" {
		observation = noOutput
	}
	return Outcome{Call: call, Observation: observation}
}

// invoke runs the handler on its own goroutine. The deadline holds even for
// handlers that ignore their context.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, input string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type reply struct {
		result Result
		err    error
	}
	done := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("panic in %s: %v", h.Name(), r)}
			}
		}()
		done <- reply{result: h.Invoke(callCtx, input)}
	}()

	select {
	case r := <-done:
		if r.err == nil && !r.result.Success && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Result{}, d.timeoutError()
		}
		return r.result, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, d.timeoutError()
	}
}

func (d *Dispatcher) timeoutError() error {
	return fmt.Errorf("%w after %s", ErrToolTimeout, d.timeout)
}

func executionFailed(err error) string {
	return fmt.Sprintf("ERROR: Tool execution failed: %v", err)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
