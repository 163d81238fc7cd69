package suite

import "fmt"

// Status is the outcome of a test, or the aggregate outcome of a group.
type Status uint8

const (
	StatusNotRun Status = iota
	StatusSuccess
	StatusFail
	StatusError
	StatusSkipped
)

var statusNames = map[Status]string{
	StatusNotRun:  "not_run",
	StatusSuccess: "success",
	StatusFail:    "fail",
	StatusError:   "error",
	StatusSkipped: "skipped",
}

// String implements fmt.Stringer
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus converts a status name (as written by the host bootstrap) to a Status.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusNotRun, fmt.Errorf("unknown status %q", name)
}

// Terminal reports whether the status is the result of an execution.
func (s Status) Terminal() bool {
	return s != StatusNotRun
}

// Failed reports whether the status counts as a failed run (FAIL or ERROR).
func (s Status) Failed() bool {
	return s == StatusFail || s == StatusError
}

// rank orders the non-error statuses for aggregation:
// FAIL > SUCCESS > SKIPPED > NOT_RUN. ERROR is handled by Aggregate directly.
func (s Status) rank() int {
	switch s {
	case StatusFail:
		return 3
	case StatusSuccess:
		return 2
	case StatusSkipped:
		return 1
	default:
		return 0
	}
}

// Aggregate folds child statuses left to right. Any ERROR wins immediately;
// otherwise the worst status seen by FAIL > SUCCESS > SKIPPED > NOT_RUN.
func Aggregate(statuses []Status) Status {
	worst := StatusNotRun
	for _, s := range statuses {
		if s == StatusError {
			return StatusError
		}
		worst = Worse(worst, s)
	}
	return worst
}

// Worse returns the more severe of a and b. A later SUCCESS never
// downgrades an earlier FAIL.
func Worse(a, b Status) Status {
	if a == StatusError || b == StatusError {
		return StatusError
	}
	if b.rank() > a.rank() {
		return b
	}
	return a
}
