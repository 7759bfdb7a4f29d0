package script

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/worklinehq/workline/pkg/schema"
)

// DefaultTimeout bounds a single script run unless the caller overrides it.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of a script run. Logs holds anything the script
// emitted through the log() helper, in order.
type Result struct {
	Value any
	Logs  []string
}

// Runner routes custom_code to the engine named by the descriptor's
// language field and bounds every run with a timeout. The engines
// themselves do not watch the context uniformly (expr and CEL run to
// completion), so the runner waits on a goroutine and abandons runs
// that outlive their deadline.
type Runner struct {
	engines map[string]Engine
	logger  *slog.Logger
	timeout time.Duration
}

// NewRunner builds a runner with all three engines registered. A zero
// timeout means DefaultTimeout.
func NewRunner(logger *slog.Logger, timeout time.Duration) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}

	engines := map[string]Engine{}
	for _, eng := range []Engine{NewExprEngine(), celEngine, NewGoJQEngine()} {
		engines[eng.Name()] = eng
	}

	return &Runner{engines: engines, logger: logger, timeout: timeout}, nil
}

// Engine returns the registered engine for a language name, defaulting
// to expr when the name is empty.
func (r *Runner) Engine(language string) (Engine, error) {
	if language == "" {
		language = "expr"
	}
	eng, ok := r.engines[language]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown script language %q", language)
	}
	return eng, nil
}

// Run evaluates code against the step input and execution variables.
// Scripts see the input document as "input" and the variables as "vars";
// expr scripts additionally get a log(values...) helper whose output is
// captured into the result and mirrored to the runner's logger.
func (r *Runner) Run(ctx context.Context, language, code string, input, vars map[string]any) (Result, error) {
	eng, err := r.Engine(language)
	if err != nil {
		return Result{}, err
	}

	sink := &logSink{logger: r.logger}
	data := map[string]any{
		"input": orEmpty(input),
		"vars":  orEmpty(vars),
	}
	if eng.Name() == "expr" {
		data["log"] = sink.logFunc()
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type evalOut struct {
		value any
		err   error
	}
	done := make(chan evalOut, 1)
	go func() {
		value, err := eng.Evaluate(runCtx, code, data)
		done <- evalOut{value: value, err: err}
	}()

	select {
	case <-runCtx.Done():
		return Result{Logs: sink.lines()}, schema.NewErrorf(schema.ErrCodeTimeout,
			"script exceeded %s", r.timeout).
			WithCause(runCtx.Err()).
			WithDetails(map[string]any{"language": eng.Name()})
	case out := <-done:
		if out.err != nil {
			// gojq surfaces cancellation through its own error path.
			if runCtx.Err() != nil {
				return Result{Logs: sink.lines()}, schema.NewErrorf(schema.ErrCodeTimeout,
					"script exceeded %s", r.timeout).
					WithCause(out.err).
					WithDetails(map[string]any{"language": eng.Name()})
			}
			return Result{Logs: sink.lines()}, out.err
		}
		return Result{Value: out.value, Logs: sink.lines()}, nil
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// logSink collects script log output. Guarded because expr may invoke
// the helper from the evaluation goroutine while the runner reads after
// a timeout.
type logSink struct {
	logger *slog.Logger

	mu    sync.Mutex
	items []string
}

func (s *logSink) logFunc() func(args ...any) any {
	return func(args ...any) any {
		line := fmt.Sprintln(args...)
		line = line[:len(line)-1]

		s.mu.Lock()
		s.items = append(s.items, line)
		s.mu.Unlock()

		s.logger.Debug("script log", slog.String("line", line))
		return nil
	}
}

func (s *logSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
