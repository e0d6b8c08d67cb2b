package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"

	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/errs"
)

// squeueFormat is the exact fixed-column squeue invocation used by the
// original source: id, partition, job-name, user, state, elapsed, nodes,
// host.
const squeueFormat = "%.18i %.9P %.17j %.10u %.2t %.10M %.6D %R"

// Slurm is the batch-scheduler Adapter implementation, invoking sbatch,
// squeue, and scancel (spec.md §4.2, §6).
type Slurm struct {
	log *clog.CLogger

	SubmitCmd string // default "sbatch"
	QueueCmd  string // default "squeue"
	CancelCmd string // default "scancel"
	WorkDir   string // $SLURM_SUBMIT_DIR equivalent; defaults to cwd
}

// NewSlurm returns a Slurm adapter with default tool names.
func NewSlurm(log *clog.CLogger) *Slurm {
	return &Slurm{
		log:       log,
		SubmitCmd: "sbatch",
		QueueCmd:  "squeue",
		CancelCmd: "scancel",
	}
}

// Submit renders the worker script layout of spec.md §6 (SBATCH directives,
// a cd into WorkDir, a redirect of the assigned node name to
// "<job-name>-node.txt", then cmd) and submits it via sbatch.
func (s *Slurm) Submit(ctx context.Context, cmd string, params Params) (string, error) {
	scriptPath := params.ScriptPath
	if scriptPath == "" {
		scriptPath = params.JobName + ".sh"
	}
	nodeFile := params.JobName + "-node.txt"

	script := fmt.Sprintf(`#!/bin/bash
#SBATCH --job-name %s
#SBATCH --ntasks=1
#SBATCH --cpus-per-task=%d
#SBATCH --mem=%dgb
#SBATCH --partition=%s
#SBATCH --time=%s
#SBATCH --output=%s
#SBATCH --error=%s
cd %s
echo $SLURMD_NODENAME > %s
%s
`, params.JobName, params.Cores, params.MemoryGB, params.Queue,
		FormatWallTime(params.WallTimeMinutes), params.StdoutPath, params.StderrPath,
		s.workDir(), nodeFile, cmd)

	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return "", &errs.SubmissionError{Cause: fmt.Errorf("writing submission script: %w", err)}
	}

	out, err := s.run(ctx, s.SubmitCmd, scriptPath)
	if err != nil {
		return "", &errs.SubmissionError{Cause: err}
	}

	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", &errs.SubmissionError{Cause: fmt.Errorf("%s produced no output", s.SubmitCmd)}
	}
	return fields[len(fields)-1], nil
}

// Query invokes squeue -u <user> -o <squeueFormat> and parses its fixed
// column layout, stripping the header line and empty trailer.
func (s *Slurm) Query(ctx context.Context) ([]JobInfo, error) {
	u, err := user.Current()
	if err != nil {
		return nil, &errs.ProbeError{Cause: err}
	}

	out, err := s.run(ctx, s.QueueCmd, "-u", u.Username, "-o", squeueFormat)
	if err != nil {
		return nil, &errs.ProbeError{Cause: err}
	}

	jobs, err := parseQueueOutput(out)
	if err != nil {
		return nil, &errs.ProbeError{Cause: fmt.Errorf("%s: %w", s.QueueCmd, err)}
	}
	return jobs, nil
}

// parseQueueOutput parses squeue's fixed-column output (id, partition,
// job-name, user, state, elapsed, nodes, host), stripping the header line
// and any empty trailer. It fails if no data rows remain.
func parseQueueOutput(out string) ([]JobInfo, error) {
	lines := strings.Split(out, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= 1 {
		return nil, fmt.Errorf("produced no data rows")
	}
	lines = lines[1:] // strip header row

	jobs := make([]JobInfo, 0, len(lines))
	for _, line := range lines {
		cols := strings.Fields(line)
		if len(cols) < 6 {
			continue
		}
		elapsed, err := ParseWallTime(cols[5])
		if err != nil {
			elapsed = 0
		}
		jobs = append(jobs, JobInfo{
			SubmissionID: cols[0],
			JobName:      cols[2],
			State:        ParseStateCode(cols[4]),
			ElapsedMin:   elapsed,
		})
	}
	return jobs, nil
}

// Cancel invokes scancel. Failures are logged, not returned, since canceling
// an already-completed or already-gone job is expected during teardown.
func (s *Slurm) Cancel(ctx context.Context, submissionID string) error {
	if _, err := s.run(ctx, s.CancelCmd, submissionID); err != nil {
		s.log.Errorf("scancel %s failed (job may already be gone): %v", submissionID, err)
	}
	return nil
}

func (s *Slurm) workDir() string {
	if s.WorkDir != "" {
		return s.WorkDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (s *Slurm) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}
