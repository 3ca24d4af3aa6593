// Package pipeline implements the prompt-enhancement execution engine:
// a budgeted, sequential stage pipeline with classified failures,
// narrowed retries, and best-effort degraded results.
//
// One pipeline run owns one Context. Stages receive the context, read
// earlier stages' outputs from Data, and return a Delta that the
// orchestrator merges back in. Nothing in this package is safe for
// sharing a single run across goroutines; distinct runs are fully
// independent.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Request is the caller-owned payload a run enhances. Stages treat it
// as read-only.
type Request struct {
	Prompt string            `json:"prompt"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Field returns a request field or the empty string.
func (r Request) Field(key string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[key]
}

// StageError records a fact about a specific stage failure. Retryable
// is fixed at classification time and determines whether the
// orchestrator may retry the stage.
type StageError struct {
	Stage     string         `json:"stage"`
	Err       string         `json:"error"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Context is the accumulating state threaded through every stage of a
// run. It is created when a tool invocation starts, mutated additively
// by the orchestrator merging each stage's Delta, and handed back to
// the caller as the run's only result.
type Context struct {
	RequestID string
	Tool      string
	Request   Request

	Budget *Tracker
	Scope  Scope

	// Data maps stage name to that stage's output. Keys are only ever
	// added, never removed; DataOrder records insertion order, which
	// equals execution order.
	Data      map[string]any
	DataOrder []string

	// Metadata holds per-stage auxiliary annotations (timings, token
	// estimates, cache hits).
	Metadata map[string]map[string]any

	Errors         []StageError
	Warnings       []string
	StagesExecuted []string

	Success bool
	Err     *StageError

	StartTime     time.Time
	ExecutionTime time.Duration
}

// NewContext creates the context for one run. Success starts true and
// is only cleared by a fatal failure or an unaffordable required stage.
func NewContext(tool string, req Request, budget Budget, scope Scope) *Context {
	return &Context{
		RequestID: newRequestID(),
		Tool:      tool,
		Request:   req,
		Budget:    NewTracker(budget),
		Scope:     scope.Clone(),
		Data:      make(map[string]any),
		Metadata:  make(map[string]map[string]any),
		Success:   true,
		StartTime: time.Now(),
	}
}

// Delta is the partial context a stage returns from Execute: only the
// keys it wants to add, plus any warnings and degraded-mode errors it
// recorded internally.
type Delta struct {
	Data     map[string]any
	Metadata map[string]any
	Warnings []string
	Errors   []StageError
}

// Merge folds a stage's delta into the context. Accumulation is
// monotonic: existing Data keys are preserved in DataOrder, and a nil
// value in the delta never clobbers an existing entry.
func (c *Context) Merge(stage string, d *Delta) {
	if d == nil {
		return
	}
	for k, v := range d.Data {
		if v == nil {
			continue
		}
		if _, seen := c.Data[k]; !seen {
			c.DataOrder = append(c.DataOrder, k)
		}
		c.Data[k] = v
	}
	if len(d.Metadata) > 0 {
		meta := c.Metadata[stage]
		if meta == nil {
			meta = make(map[string]any, len(d.Metadata))
			c.Metadata[stage] = meta
		}
		for k, v := range d.Metadata {
			meta[k] = v
		}
	}
	c.Warnings = append(c.Warnings, d.Warnings...)
	c.Errors = append(c.Errors, d.Errors...)
}

// Value returns the output a stage placed into Data, with presence:
// absent means the stage was skipped or never reached, and downstream
// stages must handle that.
func (c *Context) Value(stage string) (any, bool) {
	v, ok := c.Data[stage]
	return v, ok
}

// Executed reports whether the named stage ran to completion (success
// or exhausted retries).
func (c *Context) Executed(stage string) bool {
	for _, s := range c.StagesExecuted {
		if s == stage {
			return true
		}
	}
	return false
}

// Deadline returns the wall-clock instant at which the run's time
// budget expires.
func (c *Context) Deadline() time.Time {
	return c.StartTime.Add(c.Budget.Initial().Time)
}

// newRequestID is split out for tests that need stable IDs.
var newRequestID = uuid.NewString
