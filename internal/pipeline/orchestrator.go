package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Options tunes the engine-wide retry policy. The same policy applies
// uniformly to every stage; stages only contribute their CanRetry
// classifier.
type Options struct {
	// MaxAttempts is the number of retries after the first attempt.
	MaxAttempts int
	// NarrowFactor shrinks files/chunks allowances and scope limits
	// before each retry, so retried attempts form a geometrically
	// shrinking series bounded by the original budget.
	NarrowFactor float64
	Logger       *slog.Logger
}

// DefaultOptions returns the engine defaults: two retries, halving on
// each.
func DefaultOptions() Options {
	return Options{MaxAttempts: 2, NarrowFactor: 0.5}
}

// Orchestrator drives one pipeline run at a time per call: budget
// check, stage execution, failure classification, narrowed retry,
// delta merge, halt-or-continue. Multiple concurrent Run calls are
// safe — each owns its own Context.
type Orchestrator struct {
	registry *Registry
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// New creates an orchestrator over the given registry.
func New(registry *Registry, opts Options) *Orchestrator {
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.NarrowFactor <= 0 || opts.NarrowFactor >= 1 {
		opts.NarrowFactor = DefaultOptions().NarrowFactor
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{registry: registry, opts: opts, log: log, now: time.Now}
}

// Run executes the tool's stage flow against a fresh context and
// returns that context as the run's result. The caller always receives
// accumulated data, warnings, and errors — success=false is reserved
// for a blocked gate or a required stage that could not produce usable
// output.
func (o *Orchestrator) Run(ctx context.Context, tool string, req Request, budget Budget, scope Scope) *Context {
	pc := NewContext(tool, req, budget, scope)
	log := o.log.With(
		slog.String("request_id", pc.RequestID),
		slog.String("tool", tool),
	)

	flow, err := o.registry.Flow(tool)
	if err != nil {
		pc.Success = false
		pc.Err = &StageError{Stage: "", Err: err.Error(), Timestamp: o.now()}
		pc.ExecutionTime = o.now().Sub(pc.StartTime)
		return pc
	}

	log.Info("pipeline started", slog.Int("stages", len(flow)))

	for i, entry := range flow {
		name := entry.Stage.Name()

		// Wall-clock deadline is cooperative and checked only between
		// stages; exceeding it is budget exhaustion.
		if budget.Time > 0 && o.now().After(pc.Deadline()) {
			pc.Warnings = append(pc.Warnings, fmt.Sprintf("time budget exhausted before stage %q", name))
			if required := firstRequired(flow[i:]); required != "" {
				pc.Success = false
				pc.Err = &StageError{Stage: required, Err: "time budget exhausted", Timestamp: o.now()}
			}
			break
		}

		if ctx.Err() != nil {
			pc.Warnings = append(pc.Warnings, fmt.Sprintf("run canceled before stage %q", name))
			pc.Success = false
			pc.Err = &StageError{Stage: name, Err: ctx.Err().Error(), Timestamp: o.now()}
			break
		}

		cost := entry.Stage.Cost()
		if !pc.Budget.CanAfford(cost) {
			if entry.Optional {
				pc.Warnings = append(pc.Warnings, fmt.Sprintf("stage %q skipped: insufficient budget", name))
				log.Debug("stage skipped", slog.String("stage", name))
				continue
			}
			pc.Warnings = append(pc.Warnings, fmt.Sprintf("pipeline stopped at required stage %q: insufficient budget", name))
			pc.Success = false
			pc.Err = &StageError{Stage: name, Err: ErrInsufficientBudget.Error(), Timestamp: o.now()}
			break
		}
		if err := pc.Budget.Debit(cost); err != nil {
			// CanAfford was just checked; a failed debit is a bug.
			pc.Success = false
			pc.Err = &StageError{Stage: name, Err: err.Error(), Timestamp: o.now()}
			break
		}

		if halt := o.runStage(ctx, log, pc, entry); halt {
			break
		}
	}

	pc.ExecutionTime = o.now().Sub(pc.StartTime)
	log.Info("pipeline finished",
		slog.Bool("success", pc.Success),
		slog.Int("stages_executed", len(pc.StagesExecuted)),
		slog.Int("errors", len(pc.Errors)),
		slog.Int("warnings", len(pc.Warnings)),
		slog.Duration("duration", pc.ExecutionTime),
	)
	return pc
}

// runStage runs one stage through the retry loop and merges its
// result. The returned bool reports whether the pipeline must halt.
func (o *Orchestrator) runStage(ctx context.Context, log *slog.Logger, pc *Context, entry Entry) bool {
	name := entry.Stage.Name()

	for attempt := 0; ; attempt++ {
		start := o.now()
		delta, err := o.execute(ctx, entry.Stage, pc)
		elapsed := o.now().Sub(start)

		if err == nil {
			pc.Merge(name, delta)
			meta := pc.Metadata[name]
			if meta == nil {
				meta = make(map[string]any)
				pc.Metadata[name] = meta
			}
			meta["duration_ms"] = elapsed.Milliseconds()
			if attempt > 0 {
				meta["attempts"] = attempt + 1
			}
			pc.StagesExecuted = append(pc.StagesExecuted, name)
			log.Debug("stage succeeded",
				slog.String("stage", name),
				slog.Int("attempt", attempt),
				slog.Duration("duration", elapsed),
			)
			return false
		}

		se := StageError{
			Stage:     name,
			Err:       err.Error(),
			Timestamp: o.now(),
			Retryable: entry.Stage.CanRetry(err),
		}
		if _, isPanic := err.(*panicError); isPanic {
			se.Retryable = false
		}
		var be *BlockedError
		if errors.As(err, &be) {
			se.Retryable = false
			se.Details = map[string]any{"violations": be.Violations}
		}
		pc.Errors = append(pc.Errors, se)

		if se.Retryable && attempt < o.opts.MaxAttempts {
			pc.Budget.Narrow(o.opts.NarrowFactor)
			pc.Scope.Narrow(o.opts.NarrowFactor)
			log.Warn("stage retrying with narrowed scope",
				slog.String("stage", name),
				slog.Int("attempt", attempt+1),
				slog.String("error", se.Err),
			)
			continue
		}

		// Exhausted retries or non-retryable.
		pc.StagesExecuted = append(pc.StagesExecuted, name)
		if entry.FatalOnFailure {
			pc.Success = false
			pc.Err = &se
			log.Warn("pipeline halted by stage",
				slog.String("stage", name),
				slog.String("error", se.Err),
			)
			return true
		}
		pc.Warnings = append(pc.Warnings, fmt.Sprintf(
			"stage %q failed after %d attempt(s): %s; continuing with partial data", name, attempt+1, se.Err))
		log.Warn("stage exhausted, continuing degraded",
			slog.String("stage", name),
			slog.Int("attempts", attempt+1),
			slog.String("error", se.Err),
		)
		return false
	}
}

// execute invokes a stage and converts an escaped panic into an error.
// Panics are the "programming/unexpected" class: never retryable, the
// run continues degraded unless the stage is fatal.
func (o *Orchestrator) execute(ctx context.Context, s Stage, pc *Context) (delta *Delta, err error) {
	defer func() {
		if r := recover(); r != nil {
			delta = nil
			err = &panicError{stage: s.Name(), value: r}
		}
	}()
	return s.Execute(ctx, pc)
}

type panicError struct {
	stage string
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("stage %q panicked: %v", e.stage, e.value)
}

// firstRequired returns the name of the first non-optional stage in the
// remaining flow, or "" if every remaining stage is optional.
func firstRequired(flow []Entry) string {
	for _, e := range flow {
		if !e.Optional {
			return e.Stage.Name()
		}
	}
	return ""
}
