package poll

import (
	"context"
	"time"
)

// Outcome classifies a single probe invocation.
type Outcome int

const (
	// Pending means the resource is not done yet; poll again if budget remains.
	Pending Outcome = iota
	// Success is terminal and ends the poll without error.
	Success
	// Failed is terminal and aborts the poll with the result's Reason.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a probe reports for one check. Reason is only meaningful
// for Failed.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Terminal reports whether the result stops polling.
func (r Result) Terminal() bool {
	return r.Outcome == Success || r.Outcome == Failed
}

func (r Result) String() string {
	if r.Outcome == Failed && r.Reason != "" {
		return "failed(" + r.Reason + ")"
	}
	return r.Outcome.String()
}

// Succeeded returns a Success result.
func Succeeded() Result { return Result{Outcome: Success} }

// StillPending returns a Pending result.
func StillPending() Result { return Result{Outcome: Pending} }

// FailedWith returns a Failed result carrying reason.
func FailedWith(reason string) Result { return Result{Outcome: Failed, Reason: reason} }

// Probe performs one remote check. A returned error ends the poll
// immediately; it is never treated as Pending. Probes should bound their own
// latency, the poller does not time them out.
type Probe func(ctx context.Context) (Result, error)

// AttemptObserver is told about every completed probe invocation.
type AttemptObserver func(attempt int, result Result, err error)

// Sleeper suspends for d or until ctx is done, whichever is first.
type Sleeper func(ctx context.Context, d time.Duration) error
