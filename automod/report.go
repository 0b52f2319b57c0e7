package automod

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Skip reasons recorded by the engine itself (precedence skips carry their own message).
const (
	SkipNotBanned         = "Not banned"
	SkipPropagationFailed = "Coordination post failed"
	SkipStoreFailed       = "Store error"
	SkipCancelled         = "Cancelled"
)

// Failure of a single identity's processing.
type IdentityError struct {
	ID  int64
	Err error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity %d: %s", e.ID, e.Err)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// Outcome of one gban or ungban invocation, grouped by reason. For ungban, Banned holds the unbanned identities, keyed by the reason they had been banned for.
type Report struct {
	Op      string
	Banned  map[string][]int64
	Skipped map[string][]int64
	Errors  []error

	lk sync.Mutex
}

func newReport(op string) *Report {
	return &Report{
		Op:      op,
		Banned:  make(map[string][]int64),
		Skipped: make(map[string][]int64),
	}
}

func (r *Report) addBanned(reason string, id int64) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.Banned[reason] = append(r.Banned[reason], id)
}

func (r *Report) addSkipped(reason string, id int64) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.Skipped[reason] = append(r.Skipped[reason], id)
}

func (r *Report) addError(id int64, err error) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.Errors = append(r.Errors, &IdentityError{ID: id, Err: err})
}

// Joined identity errors, or nil.
func (r *Report) Err() error {
	r.lk.Lock()
	defer r.lk.Unlock()
	return errors.Join(r.Errors...)
}

// Every identity listed under Banned.
func (r *Report) BannedIDs() []int64 {
	return flatten(r.Banned)
}

func (r *Report) SkippedIDs() []int64 {
	return flatten(r.Skipped)
}

// Reasons of a report map, sorted.
func Reasons(m map[string][]int64) []string {
	return slices.Sorted(maps.Keys(m))
}

func flatten(m map[string][]int64) []int64 {
	var out []int64
	for _, reason := range Reasons(m) {
		out = append(out, m[reason]...)
	}
	return out
}

func (r *Report) CanonicalLogLine(logger *slog.Logger) {
	logger.Info("canonical-moderation-line",
		"op", r.Op,
		"banned", len(r.BannedIDs()),
		"skipped", len(r.SkippedIDs()),
		"errors", len(r.Errors),
		"reasons", Reasons(r.Banned),
	)
}
