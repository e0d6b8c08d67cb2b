package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/errs"
)

// SSH is the remote-shell Adapter implementation (spec.md §4.2): it spawns
// workers over a non-interactive remote shell and kills them the same way.
// It has no status channel; Query always returns ErrQueryUnsupported, so
// confirm-running is a documented capability gap rather than a simulated
// probe (spec.md §9 Open Questions).
type SSH struct {
	log *clog.CLogger

	SSHCmd           string        // default "ssh"
	SleepAfterSubmit time.Duration // default 1s; lets the remote process start
}

// NewSSH returns an SSH adapter with default settings.
func NewSSH(log *clog.CLogger) *SSH {
	return &SSH{log: log, SSHCmd: "ssh", SleepAfterSubmit: time.Second}
}

// Submit spawns cmd on params.Host over a non-interactive, backgrounded ssh
// session ("ssh -n -f host sh -c cmd"), matching the original source's
// launch_sshworkers. The returned submission id encodes host and cmd
// together (host|cmd) since the SSH variant has no scheduler-issued job id;
// Cancel decodes it to locate and kill the right remote process.
func (s *SSH) Submit(ctx context.Context, cmd string, params Params) (string, error) {
	if params.Host == "" {
		return "", &errs.SubmissionError{Cause: fmt.Errorf("ssh adapter requires Params.Host")}
	}

	remote := fmt.Sprintf("sh -c '%s'", cmd)
	sshCmd := exec.CommandContext(ctx, s.SSHCmd, "-n", "-f", params.Host, remote)
	var stderr bytes.Buffer
	sshCmd.Stderr = &stderr
	if err := sshCmd.Run(); err != nil {
		return "", &errs.SubmissionError{Cause: fmt.Errorf("ssh -n -f %s: %w: %s", params.Host, err, stderr.String())}
	}

	if s.SleepAfterSubmit > 0 {
		select {
		case <-time.After(s.SleepAfterSubmit):
		case <-ctx.Done():
		}
	}

	return params.Host + "|" + cmd, nil
}

// Query always fails: the remote-shell variant has no status channel.
func (s *SSH) Query(ctx context.Context) ([]JobInfo, error) {
	return nil, ErrQueryUnsupported
}

// Cancel kills the remote process matching cmd on host by pattern, mirroring
// the original's kill_sshworkers pkill invocation. Failures are logged, not
// returned: the process may already be gone.
func (s *SSH) Cancel(ctx context.Context, submissionID string) error {
	host, cmd, ok := strings.Cut(submissionID, "|")
	if !ok {
		s.log.Errorf("malformed ssh submission id %q", submissionID)
		return nil
	}

	remote := fmt.Sprintf(`sh -c "pkill -f \"%s\""`, cmd)
	killCmd := exec.CommandContext(ctx, s.SSHCmd, "-n", "-f", host, remote)
	var stderr bytes.Buffer
	killCmd.Stderr = &stderr
	if err := killCmd.Run(); err != nil {
		s.log.Errorf("pkill on %s failed (process may already be gone): %v: %s", host, err, stderr.String())
	}
	return nil
}
