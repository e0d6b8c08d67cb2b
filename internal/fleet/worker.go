// Package fleet implements the worker record and fleet manager of spec.md
// §4.3: launch policies, status polling, time-based restart, and teardown
// for a pool of remote worker processes.
package fleet

import (
	"crypto/rand"
	"fmt"

	"github.com/ke0m/scaleup/internal/scheduler"
)

const localIDChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// LogPaths holds a worker's stdout/stderr log file paths.
type LogPaths struct {
	Stdout string
	Stderr string
}

// WorkerRecord is the per-worker state object of spec.md §3. Submission
// parameters are kept as unexported state reachable only through SetParams
// and Params, following the original source's private-field convention for
// submission parameters (spec.md §9 Design Notes).
type WorkerRecord struct {
	LocalID         string
	SubmissionID    string // "" means null, per spec.md §3 invariants
	State           scheduler.State
	LogPaths        LogPaths
	ElapsedMinutes  float64
	SubmissionCount int

	namePrefix string
	params     scheduler.Params
	torndown   bool
}

// newWorkerRecord creates a WorkerRecord in state UNSUBMITTED with a random
// six-character local id, unique against used (the set of ids already
// assigned this run).
func newWorkerRecord(namePrefix string, used map[string]bool) *WorkerRecord {
	id := generateLocalID()
	for used[id] {
		id = generateLocalID()
	}
	used[id] = true
	return &WorkerRecord{
		LocalID:    id,
		State:      scheduler.StateUnsubmitted,
		namePrefix: namePrefix,
	}
}

func generateLocalID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("fleet: reading random bytes for local id: %v", err))
	}
	out := make([]byte, 6)
	for i, b := range buf {
		out[i] = localIDChars[int(b)%len(localIDChars)]
	}
	return string(out)
}

// JobName is the name this worker is submitted under: namePrefix + LocalID,
// matching spec.md §6's "<name><local_id>.sh" script naming and the job-name
// embedding poll_all searches for.
func (w *WorkerRecord) JobName() string {
	return w.namePrefix + w.LocalID
}

// SetParams records the submission parameters a worker will be (or was)
// submitted with. Per spec.md §3 invariants, a WorkerRecord in state
// TO_SUBMIT must have these set without yet having a SubmissionID.
func (w *WorkerRecord) SetParams(p scheduler.Params) {
	w.params = p
}

// Params returns a copy of the recorded submission parameters.
func (w *WorkerRecord) Params() scheduler.Params {
	return w.params
}
