package pipeline

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInsufficientBudget is returned by Tracker.Debit when a debit would
// drive any counter negative. The debit is rejected atomically — no
// counter is modified.
var ErrInsufficientBudget = errors.New("insufficient budget")

// Budget is the finite per-run allowance a pipeline may consume.
// Time is a wall-clock deadline relative to the run's start; the other
// counters are debited per stage before that stage executes.
type Budget struct {
	Time   time.Duration `json:"time"`
	Tokens int           `json:"tokens"`
	Chunks int           `json:"chunks"`
	Files  int           `json:"files"`
}

// Cost is a partial budget: the amount a single stage declares it may
// consume. Zero fields mean the stage is free on that axis. Time is not
// part of Cost — the wall-clock deadline is enforced by the orchestrator
// between stages, not debited per stage.
type Cost struct {
	Tokens int `json:"tokens"`
	Chunks int `json:"chunks"`
	Files  int `json:"files"`
}

// IsZero reports whether the cost is free on every axis.
func (c Cost) IsZero() bool {
	return c.Tokens == 0 && c.Chunks == 0 && c.Files == 0
}

// Tracker holds the remaining allowances for one pipeline run and
// narrows them on retry. It is owned by a single run and is not safe
// for concurrent use — the engine executes stages sequentially.
type Tracker struct {
	remaining Budget
	initial   Budget
	debited   Cost
}

// NewTracker creates a tracker with the given initial allowances.
func NewTracker(b Budget) *Tracker {
	return &Tracker{remaining: b, initial: b}
}

// Remaining returns the current allowances.
func (t *Tracker) Remaining() Budget {
	return t.remaining
}

// Initial returns the allowances the run started with.
func (t *Tracker) Initial() Budget {
	return t.initial
}

// Debited returns the total cost debited so far, across all stages and
// retries.
func (t *Tracker) Debited() Cost {
	return t.debited
}

// CanAfford reports whether the given cost can be debited without any
// counter going negative.
func (t *Tracker) CanAfford(c Cost) bool {
	return t.remaining.Tokens >= c.Tokens &&
		t.remaining.Chunks >= c.Chunks &&
		t.remaining.Files >= c.Files
}

// Debit subtracts the cost from the remaining allowances. If the cost
// is not affordable, no counter changes and ErrInsufficientBudget is
// returned — a rejected debit forces skip/degraded behavior upstream.
func (t *Tracker) Debit(c Cost) error {
	if !t.CanAfford(c) {
		return fmt.Errorf("%w: need %+v, have %+v", ErrInsufficientBudget, c, t.remaining)
	}
	t.remaining.Tokens -= c.Tokens
	t.remaining.Chunks -= c.Chunks
	t.remaining.Files -= c.Files
	t.debited.Tokens += c.Tokens
	t.debited.Chunks += c.Chunks
	t.debited.Files += c.Files
	return nil
}

// Narrow shrinks the files and chunks allowances by the given factor
// (0 < factor < 1) so a retried stage does strictly less work than its
// first attempt. Time and tokens are left alone: the deadline already
// bounds time, and token spend is proportional to chunks/files read.
// Returns the narrowed budget.
func (t *Tracker) Narrow(factor float64) Budget {
	if factor <= 0 || factor >= 1 {
		return t.remaining
	}
	t.remaining.Files = int(math.Floor(float64(t.remaining.Files) * factor))
	t.remaining.Chunks = int(math.Floor(float64(t.remaining.Chunks) * factor))
	return t.remaining
}

// Scope constrains how much of the workspace a stage may examine.
// Scopes only ever shrink: narrowing on retry reduces MaxFiles and
// MaxLinesPerFile and never touches AllowedFileTypes.
type Scope struct {
	MaxFiles         int      `json:"max_files"`
	MaxLinesPerFile  int      `json:"max_lines_per_file"`
	AllowedFileTypes []string `json:"allowed_file_types"`
}

// Narrow shrinks the file and line limits by the given factor, keeping
// each at a floor of 1 so a retried stage can still examine something.
func (s *Scope) Narrow(factor float64) {
	if factor <= 0 || factor >= 1 {
		return
	}
	s.MaxFiles = max(1, int(math.Floor(float64(s.MaxFiles)*factor)))
	s.MaxLinesPerFile = max(1, int(math.Floor(float64(s.MaxLinesPerFile)*factor)))
}

// Clone returns a copy with its own AllowedFileTypes slice, so a run's
// narrowing never mutates a caller-owned scope.
func (s Scope) Clone() Scope {
	out := s
	out.AllowedFileTypes = make([]string, len(s.AllowedFileTypes))
	copy(out.AllowedFileTypes, s.AllowedFileTypes)
	return out
}
