package fleet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/errs"
	"github.com/ke0m/scaleup/internal/scheduler"
)

// LaunchPolicy selects how Manager.Launch submits a batch of workers
// (spec.md §4.3).
type LaunchPolicy int

const (
	// PolicyQuiet submits workers sequentially and, optionally, waits for
	// them to report RUNNING.
	PolicyQuiet LaunchPolicy = iota
	// PolicyBusyRetry repeatedly submits batches until enough workers report
	// RUNNING, abandoning stragglers to the scheduler's own timeout.
	PolicyBusyRetry
	// PolicyAdaptive stops submitting once two workers are seen PENDING and
	// marks the remainder TO_SUBMIT for a later pass.
	PolicyAdaptive
)

// adaptivePendingLimit is the fixed threshold of the adaptive policy,
// carried forward unchanged from the original source (spec.md §12).
const adaptivePendingLimit = 2

// confirmRunningChecks and confirmRunningInterval bound the Quiet policy's
// confirm-running wait (spec.md §5).
const (
	confirmRunningChecks   = 20
	confirmRunningInterval = time.Second
)

// Manager launches N WorkerRecords against a scheduler.Adapter, polls their
// state, restarts them on a wall-time threshold, and tears them down
// (spec.md §4.3).
type Manager struct {
	adapter scheduler.Adapter
	log     *clog.CLogger

	namePrefix           string
	cmd                  string
	logDir               string
	interSubmissionDelay time.Duration

	used map[string]bool
}

// NewManager returns a Manager that submits workers running cmd (the worker
// executable invocation), named namePrefix+<local_id>, with logs written
// under logDir.
func NewManager(adapter scheduler.Adapter, log *clog.CLogger, namePrefix, cmd, logDir string, interSubmissionDelay time.Duration) *Manager {
	return &Manager{
		adapter:              adapter,
		log:                  log,
		namePrefix:           namePrefix,
		cmd:                  cmd,
		logDir:               logDir,
		interSubmissionDelay: interSubmissionDelay,
		used:                 make(map[string]bool),
	}
}

func statesOf(records []*WorkerRecord) []scheduler.State {
	out := make([]scheduler.State, len(records))
	for i, w := range records {
		out[i] = w.State
	}
	return out
}

func countRunning(records []*WorkerRecord) int {
	n := 0
	for _, w := range records {
		if w.State == scheduler.StateRunning {
			n++
		}
	}
	return n
}

// submit renders log paths for w, calls adapter.Submit, and records the
// returned submission id. Submission failures are fatal (spec.md §4.3
// Failure semantics).
func (m *Manager) submit(ctx context.Context, w *WorkerRecord) error {
	w.LogPaths = LogPaths{
		Stdout: filepath.Join(m.logDir, w.JobName()+"_out.log"),
		Stderr: filepath.Join(m.logDir, w.JobName()+"_err.log"),
	}

	p := w.Params()
	p.JobName = w.JobName()
	p.StdoutPath = w.LogPaths.Stdout
	p.StderrPath = w.LogPaths.Stderr
	if p.ScriptPath == "" {
		p.ScriptPath = filepath.Join(m.logDir, w.JobName()+".sh")
	}

	id, err := m.adapter.Submit(ctx, m.cmd, p)
	if err != nil {
		return err
	}

	w.SubmissionID = id
	w.SubmissionCount++
	w.SetParams(p)
	w.State = scheduler.StatePending
	return nil
}

func (m *Manager) sleepBetweenSubmissions(ctx context.Context) {
	if m.interSubmissionDelay <= 0 {
		return
	}
	select {
	case <-time.After(m.interSubmissionDelay):
	case <-ctx.Done():
	}
}

// Launch submits nWorkers workers with the given submission parameters
// according to policy, returning the created records and their status
// immediately after launch (spec.md §4.3).
func (m *Manager) Launch(ctx context.Context, nWorkers int, params scheduler.Params, policy LaunchPolicy, confirmRunning bool) ([]*WorkerRecord, []scheduler.State, error) {
	switch policy {
	case PolicyBusyRetry:
		return m.launchBusyRetry(ctx, nWorkers, params)
	case PolicyAdaptive:
		return m.launchAdaptive(ctx, nWorkers, params)
	default:
		return m.launchQuiet(ctx, nWorkers, params, confirmRunning)
	}
}

func (m *Manager) launchQuiet(ctx context.Context, nWorkers int, params scheduler.Params, confirmRunning bool) ([]*WorkerRecord, []scheduler.State, error) {
	records := make([]*WorkerRecord, nWorkers)
	for i := 0; i < nWorkers; i++ {
		w := newWorkerRecord(m.namePrefix, m.used)
		w.SetParams(params)
		if err := m.submit(ctx, w); err != nil {
			return nil, nil, err
		}
		records[i] = w
		if i < nWorkers-1 {
			m.sleepBetweenSubmissions(ctx)
		}
	}

	status, err := m.PollAll(ctx, records)
	if err != nil && !errors.As(err, new(*errs.InconsistencyError)) {
		m.log.Errorf("poll after launch failed: %v", err)
		err = nil
	}
	if err != nil {
		return records, status, err
	}

	if confirmRunning {
		for i := 0; i < confirmRunningChecks && countRunning(records) < nWorkers; i++ {
			select {
			case <-time.After(confirmRunningInterval):
			case <-ctx.Done():
				return records, statesOf(records), nil
			}
			status, err = m.PollAll(ctx, records)
			if err != nil {
				if errors.As(err, new(*errs.InconsistencyError)) {
					return records, status, err
				}
				m.log.Errorf("poll during confirm-running failed: %v", err)
			}
		}
	}

	return records, statesOf(records), nil
}

func (m *Manager) launchBusyRetry(ctx context.Context, nWorkers int, params scheduler.Params) ([]*WorkerRecord, []scheduler.State, error) {
	accepted := make([]*WorkerRecord, 0, nWorkers)
	acceptedIDs := make(map[string]bool, nWorkers)

	for len(accepted) < nWorkers {
		batchSize := nWorkers - len(accepted)
		batch := make([]*WorkerRecord, 0, batchSize)
		for i := 0; i < batchSize; i++ {
			w := newWorkerRecord(m.namePrefix, m.used)
			w.SetParams(params)
			if err := m.submit(ctx, w); err != nil {
				return nil, nil, err
			}
			batch = append(batch, w)
			if i < batchSize-1 {
				m.sleepBetweenSubmissions(ctx)
			}
		}

		if _, err := m.PollAll(ctx, batch); err != nil {
			if errors.As(err, new(*errs.InconsistencyError)) {
				return nil, nil, err
			}
			m.log.Errorf("poll during busy-retry launch failed: %v", err)
		}

		for _, w := range batch {
			if w.State == scheduler.StateRunning && !acceptedIDs[w.LocalID] {
				accepted = append(accepted, w)
				acceptedIDs[w.LocalID] = true
			}
			// Non-running workers from this batch are abandoned: not
			// canceled explicitly, left for the scheduler's own wall-time
			// timeout to reap (spec.md §4.3).
		}
	}

	return accepted, statesOf(accepted), nil
}

func (m *Manager) launchAdaptive(ctx context.Context, nWorkers int, params scheduler.Params) ([]*WorkerRecord, []scheduler.State, error) {
	records := make([]*WorkerRecord, 0, nWorkers)
	pendingSeen := 0

	for i := 0; i < nWorkers; i++ {
		w := newWorkerRecord(m.namePrefix, m.used)
		w.SetParams(params)

		if pendingSeen >= adaptivePendingLimit {
			w.State = scheduler.StateToSubmit
			records = append(records, w)
			continue
		}

		if err := m.submit(ctx, w); err != nil {
			return nil, nil, err
		}
		m.sleepBetweenSubmissions(ctx)
		if _, err := m.PollAll(ctx, []*WorkerRecord{w}); err != nil {
			if errors.As(err, new(*errs.InconsistencyError)) {
				return nil, nil, err
			}
			m.log.Errorf("poll during adaptive launch failed: %v", err)
		}
		if w.State == scheduler.StatePending {
			pendingSeen++
		}
		records = append(records, w)
	}

	status, err := m.launchToSubmit(ctx, records)
	return records, status, err
}

// launchToSubmit is the adaptive policy's follow-up pass (spec.md §4.3,
// §9 Open Questions): it submits TO_SUBMIT records only if fewer than
// adaptivePendingLimit workers are currently PENDING.
func (m *Manager) launchToSubmit(ctx context.Context, records []*WorkerRecord) ([]scheduler.State, error) {
	status, err := m.PollAll(ctx, records)
	if err != nil {
		if errors.As(err, new(*errs.InconsistencyError)) {
			return status, err
		}
		m.log.Errorf("poll before to-submit pass failed: %v", err)
	}

	pending := 0
	for _, w := range records {
		if w.State == scheduler.StatePending {
			pending++
		}
	}
	if pending >= adaptivePendingLimit {
		return statesOf(records), nil
	}

	for _, w := range records {
		if w.State != scheduler.StateToSubmit {
			continue
		}
		if err := m.submit(ctx, w); err != nil {
			return nil, err
		}
		m.sleepBetweenSubmissions(ctx)
	}

	return m.PollAll(ctx, records)
}

// PollAll queries the scheduler once and maps the result across records
// (spec.md §4.3). A record not found in the query output is reinterpreted:
// previously RUNNING becomes COMPLETING, previously TO_SUBMIT stays
// TO_SUBMIT. A record with no submission id that is in neither of those
// states is a fatal InconsistencyError.
//
// Callers must probe with PollAll before making a Restart decision: elapsed
// time is only as fresh as the last poll (spec.md §9 Open Questions).
func (m *Manager) PollAll(ctx context.Context, records []*WorkerRecord) ([]scheduler.State, error) {
	jobs, err := m.adapter.Query(ctx)
	if err != nil {
		if errors.Is(err, scheduler.ErrQueryUnsupported) {
			return statesOf(records), nil
		}
		return statesOf(records), &errs.ProbeError{Cause: err}
	}

	for _, w := range records {
		if w.SubmissionID == "" {
			if w.State != scheduler.StateToSubmit {
				return statesOf(records), &errs.InconsistencyError{
					Detail: fmt.Sprintf("worker %s has no submission id but state %s", w.LocalID, w.State),
				}
			}
			continue
		}

		found := false
		for _, j := range jobs {
			if strings.Contains(j.JobName, w.LocalID) {
				w.State = j.State
				w.ElapsedMinutes = j.ElapsedMin
				found = true
				break
			}
		}
		if !found {
			switch w.State {
			case scheduler.StateRunning:
				w.State = scheduler.StateCompleting
			case scheduler.StateToSubmit:
				// stays TO_SUBMIT
			default:
				w.State = scheduler.StateCompleting
			}
		}
	}

	return statesOf(records), nil
}

// Restart cancels and resubmits RUNNING workers, incrementing their
// submission count. If byTime is true, only workers whose elapsed time has
// reached fraction of their wall-time limit are restarted; otherwise every
// RUNNING worker is restarted unconditionally (spec.md §4.3).
func (m *Manager) Restart(ctx context.Context, records []*WorkerRecord, byTime bool, fraction float64) ([]scheduler.State, error) {
	for _, w := range records {
		if w.State != scheduler.StateRunning {
			continue
		}

		restart := !byTime
		if byTime {
			wt := w.Params().WallTimeMinutes
			if wt > 0 && w.ElapsedMinutes/wt >= fraction {
				restart = true
			}
		}
		if !restart {
			continue
		}

		if err := m.adapter.Cancel(ctx, w.SubmissionID); err != nil {
			m.log.Errorf("cancel during restart of %s failed: %v", w.LocalID, err)
		}
		if err := m.submit(ctx, w); err != nil {
			return nil, err
		}
	}
	return statesOf(records), nil
}

// Shutdown cancels every submitted worker and, if cleanFiles is true,
// removes the script, node-name, and log files whose names contain the
// worker's local id. TO_SUBMIT records are skipped since they were never
// submitted. Shutdown is best-effort and idempotent: a second call on the
// same records is a no-op (spec.md §4.3, §8 property 8).
func (m *Manager) Shutdown(ctx context.Context, records []*WorkerRecord, cleanFiles bool) {
	for _, w := range records {
		if w.torndown {
			continue
		}
		if w.State == scheduler.StateToSubmit || w.SubmissionID == "" {
			w.torndown = true
			continue
		}

		if err := m.adapter.Cancel(ctx, w.SubmissionID); err != nil {
			m.log.Errorf("cancel during shutdown of %s failed: %v", w.LocalID, err)
		}
		if cleanFiles {
			m.cleanFiles(w)
		}
		w.torndown = true
	}
}

func (m *Manager) cleanFiles(w *WorkerRecord) {
	candidates := []string{
		filepath.Join(m.logDir, w.JobName()+".sh"),
		filepath.Join(m.logDir, w.JobName()+"-node.txt"),
		w.LogPaths.Stdout,
		w.LogPaths.Stderr,
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			m.log.Errorf("removing %s during teardown: %v", p, err)
		}
	}
}
