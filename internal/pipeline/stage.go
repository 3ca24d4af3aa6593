package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// Stage is the unit of pipeline work. Implementations are supplied by
// the stage packages; the engine only sees this contract.
//
// Execute receives the run's context and returns a Delta to merge.
// Stages are expected to catch recoverable internal errors themselves
// and return a degraded Delta (possibly with Errors set) — an error
// return is reserved for conditions the stage could not absorb, and is
// what the orchestrator classifies via CanRetry.
type Stage interface {
	Name() string
	Execute(ctx context.Context, pc *Context) (*Delta, error)
	CanRetry(err error) bool
	Cost() Cost
}

// BlockedError is returned by a gate stage when policy blocks the
// request. The orchestrator treats it like any other non-retryable
// error; the registry entry's FatalOnFailure flag is what halts the
// pipeline.
type BlockedError struct {
	Violations []string
}

func (e *BlockedError) Error() string {
	if len(e.Violations) == 0 {
		return "request blocked by policy"
	}
	return "request blocked by policy: " + e.Violations[0]
}

// IsBlocked reports whether err is (or wraps) a policy block.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// Transient reports whether err looks like a transient filesystem or
// network condition worth retrying with a narrowed scope. Policy and
// validation errors are never transient; unclassified errors default
// to non-retryable. Classification is pure: the same error always
// yields the same answer.
func Transient(err error) bool {
	if err == nil || IsBlocked(err) {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return false
}
