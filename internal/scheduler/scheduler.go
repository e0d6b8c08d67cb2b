// Package scheduler abstracts the host batch scheduler behind a small
// capability interface (spec.md §4.2), so subprocess invocations of the
// scheduler's CLI tools are not sprinkled across the fleet manager. Two
// concrete implementations are provided: Slurm (batch scheduler) and SSH
// (remote, non-interactive shell).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// State is the normalized worker state, independent of the scheduler's own
// vocabulary (spec.md §3/§4.2).
type State int

const (
	StateUnsubmitted State = iota
	StateToSubmit
	StatePending
	StateRunning
	StateCompleting
	StateTimeout
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateUnsubmitted:
		return "UNSUBMITTED"
	case StateToSubmit:
		return "TO_SUBMIT"
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateCompleting:
		return "COMPLETING"
	case StateTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// ParseStateCode normalizes a raw scheduler state code (as seen in the
// queue CLI's state column) into a State. Any code not recognized maps to
// StateUnknown; the scheduler adapter never interprets absence from the
// queue output itself, that is left to the fleet manager (spec.md §4.2).
func ParseStateCode(code string) State {
	switch code {
	case "R":
		return StateRunning
	case "PD":
		return StatePending
	case "CG":
		return StateCompleting
	default:
		return StateUnknown
	}
}

// Params carries the submission parameters for one worker (spec.md §3/§4.2).
type Params struct {
	Cores           int
	MemoryGB        int
	WallTimeMinutes float64
	Queue           string
	JobName         string
	StdoutPath      string
	StderrPath      string
	// ScriptPath is where the Slurm adapter writes the generated submission
	// script. If empty, a name derived from JobName is used. Unused by the
	// SSH adapter.
	ScriptPath string
	// Host is the remote host to launch on. Used only by the SSH adapter.
	Host string
}

// JobInfo is one row of a Query response: a submission's id, normalized
// state, and elapsed run time in minutes.
type JobInfo struct {
	SubmissionID string
	JobName      string
	State        State
	ElapsedMin   float64
}

// ErrQueryUnsupported is returned by Adapter implementations (the SSH
// variant) that have no status channel at all.
var ErrQueryUnsupported = errors.New("scheduler: query is not supported by this adapter")

// Adapter is the capability translating {submit, query, cancel} into
// concrete CLI invocations of the host batch system (spec.md §4.2).
type Adapter interface {
	// Submit renders and submits a job running cmd with the given params,
	// returning the scheduler's submission id.
	Submit(ctx context.Context, cmd string, params Params) (submissionID string, err error)

	// Query returns the current state of every submission belonging to the
	// invoking user. Implementations without a status channel return
	// ErrQueryUnsupported.
	Query(ctx context.Context) ([]JobInfo, error)

	// Cancel cancels a submission. It is idempotent: canceling an
	// already-gone job is not an error.
	Cancel(ctx context.Context, submissionID string) error
}

// FormatWallTime renders minutes (possibly fractional) as HH:MM:SS, the
// format SLURM's --time directive expects.
func FormatWallTime(minutes float64) string {
	if minutes < 0 {
		minutes = 0
	}
	totalSeconds := int64(minutes*60 + 0.5)
	hours := totalSeconds / 3600
	rem := totalSeconds % 3600
	mins := rem / 60
	secs := rem % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, mins, secs)
}

// ParseWallTime is the inverse of FormatWallTime. It accepts 1, 2, or 3
// colon-separated components, interpreted (from the right) as seconds,
// minutes, hours - matching squeue's elapsed-time column.
func ParseWallTime(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid wall-time format %q", s)
	}
	var days, hours, mins, secs float64
	var err error

	last := parts[len(parts)-1]
	if secs, err = strconv.ParseFloat(last, 64); err != nil {
		return 0, fmt.Errorf("invalid wall-time format %q: %w", s, err)
	}
	if len(parts) >= 2 {
		if mins, err = strconv.ParseFloat(parts[len(parts)-2], 64); err != nil {
			return 0, fmt.Errorf("invalid wall-time format %q: %w", s, err)
		}
	}
	if len(parts) == 3 {
		// The hours component may itself carry a "D-" day prefix
		// (SLURM's "D-HH:MM:SS" form); strip it if present.
		h := parts[0]
		if i := strings.Index(h, "-"); i != -1 {
			d, derr := strconv.ParseFloat(h[:i], 64)
			if derr != nil {
				return 0, fmt.Errorf("invalid wall-time format %q: %w", s, derr)
			}
			days = d
			h = h[i+1:]
		}
		if hours, err = strconv.ParseFloat(h, 64); err != nil {
			return 0, fmt.Errorf("invalid wall-time format %q: %w", s, err)
		}
	}

	return days*24*60 + hours*60 + mins + secs/60, nil
}
