// Package errs defines the error taxonomy shared by the scheduler adapter,
// dispatch engine, and transport codec.
package errs

import "fmt"

// SubmissionError indicates the scheduler refused a job submission. Fatal:
// the caller cannot proceed without the worker it tried to create.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submission failed: %v", e.Cause) }
func (e *SubmissionError) Unwrap() error { return e.Cause }

// ProbeError indicates the scheduler's queue CLI produced no data rows. Soft
// during routine polling (the caller retries on its own cadence); fatal
// during a confirm-running wait.
type ProbeError struct {
	Cause error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe failed: %v", e.Cause) }
func (e *ProbeError) Unwrap() error { return e.Cause }

// ProtocolError indicates a malformed dispatch message or a result payload
// missing a required key. Always fatal to the dispatch loop.
type ProtocolError struct {
	Cause error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %v", e.Cause) }
func (e *ProtocolError) Unwrap() error { return e.Cause }

// CodecError indicates a payload failed to encode or decode. Always fatal.
type CodecError struct {
	Cause error
}

func (e *CodecError) Error() string { return fmt.Sprintf("codec error: %v", e.Cause) }
func (e *CodecError) Unwrap() error { return e.Cause }

// IOError indicates a socket I/O failure. Always fatal.
type IOError struct {
	Cause error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error: %v", e.Cause) }
func (e *IOError) Unwrap() error { return e.Cause }

// InconsistencyError indicates a WorkerRecord was found with a nil
// submission id while not in state TO_SUBMIT during status polling. This
// signals a bug in the fleet manager, not an operational failure. Always
// fatal.
type InconsistencyError struct {
	Detail string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("internal inconsistency: %s", e.Detail)
}
