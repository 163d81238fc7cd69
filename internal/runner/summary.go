package runner

import (
	"time"

	"github.com/rickchristie/govner/mayatdd/internal/suite"
)

// Result is one executed test.
type Result struct {
	Identity suite.Identity
	Status   suite.Status
	Detail   string
	Elapsed  time.Duration
}

// Summary describes a finished run.
type Summary struct {
	RunID   string
	Results []Result // In execution order
	Elapsed time.Duration

	Total   int
	Success int
	Fail    int
	Error   int
	Skipped int
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Total++
	switch r.Status {
	case suite.StatusSuccess:
		s.Success++
	case suite.StatusFail:
		s.Fail++
	case suite.StatusError:
		s.Error++
	case suite.StatusSkipped:
		s.Skipped++
	}
}

// OK reports whether nothing failed or errored.
func (s Summary) OK() bool {
	return s.Fail == 0 && s.Error == 0
}

// Failed returns the results that failed or errored.
func (s Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Status.Failed() {
			out = append(out, r)
		}
	}
	return out
}
