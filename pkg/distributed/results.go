package distributed

import (
	"maps"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

// RunState is the lifecycle state of a Verifier.
type RunState int

// Run states.
const (
	StateIdle RunState = iota
	StateRunning
	StateCompleted
	StateStopped
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Record is what the run knows about one domain-tree node.
//
// A node split after a timeout keeps Status UNKNOWN with Split set and the
// check time of the attempt that timed out. Pending marks a leaf whose task
// has not finished.
type Record struct {
	Status    verifier.Status `json:"status"            yaml:"status"`
	CheckTime time.Duration   `json:"check_time"        yaml:"check_time"`
	Timeout   time.Duration   `json:"timeout"           yaml:"timeout"`
	Model     *verifier.Model `json:"model,omitempty"   yaml:"model,omitempty"`
	Split     *domain.Split   `json:"split,omitempty"   yaml:"split,omitempty"`
	Pending   bool            `json:"pending,omitempty" yaml:"pending,omitempty"`
}

// Final reports whether the record is a leaf verdict.
func (r Record) Final() bool { return r.Split == nil && !r.Pending }

// Results maps domain-tree node ids to their records.
type Results map[int]Record

// IDs returns the node ids in ascending order.
func (rs Results) IDs() []int {
	return slices.Sorted(maps.Keys(rs))
}

// Count returns the number of final records with status s.
func (rs Results) Count(s verifier.Status) int {
	n := 0

	for _, r := range rs {
		if r.Final() && r.Status == s {
			n++
		}
	}

	return n
}

// Sat returns the ids of SAT leaves in ascending order.
func (rs Results) Sat() []int {
	var out []int

	for _, id := range rs.IDs() {
		if r := rs[id]; r.Final() && r.Status == verifier.StatusSat {
			out = append(out, id)
		}
	}

	return out
}

// CheckTimes returns the check times of all finished attempts, split nodes
// included, in id order.
func (rs Results) CheckTimes() []time.Duration {
	out := make([]time.Duration, 0, len(rs))

	for _, id := range rs.IDs() {
		if r := rs[id]; !r.Pending && (r.Split == nil || r.CheckTime > 0) {
			out = append(out, r.CheckTime)
		}
	}

	return out
}

func (rs Results) clone() Results {
	out := make(Results, len(rs))

	for id, r := range rs {
		if r.Model != nil {
			m := verifier.Model{X: slices.Clone(r.Model.X), Output: r.Model.Output}
			r.Model = &m
		}

		if r.Split != nil {
			s := *r.Split
			r.Split = &s
		}

		out[id] = r
	}

	return out
}
