package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/forestcheck/internal/config"
	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/alg/stats"
	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
	"github.com/Sumatoshi-tech/forestcheck/pkg/persist"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

// ErrUnknownFormat indicates an unsupported report format.
var ErrUnknownFormat = errors.New("unknown report format")

// compressedReportSuffix selects the LZ4 JSON report writer.
const compressedReportSuffix = ".json.lz4"

// Report is the outcome of one verify run.
type Report struct {
	RunID    string          `json:"run_id"          yaml:"run_id"`
	Model    string          `json:"model"           yaml:"model"`
	Property string          `json:"property"        yaml:"property"`
	State    string          `json:"state"           yaml:"state"`
	Error    string          `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"         yaml:"elapsed"`
	Ensemble addtree.Summary `json:"ensemble"        yaml:"ensemble"`
	Counts   Counts          `json:"counts"          yaml:"counts"`
	Times    stats.Summary   `json:"check_times"     yaml:"check_times"`
	Leaves   []LeafReport    `json:"leaves"          yaml:"leaves"`
}

// Counts tallies the domain-tree records of a run.
type Counts struct {
	Sat     int `json:"sat"     yaml:"sat"`
	Unsat   int `json:"unsat"   yaml:"unsat"`
	Unknown int `json:"unknown" yaml:"unknown"`
	Split   int `json:"split"   yaml:"split"`
	Pending int `json:"pending" yaml:"pending"`
}

// LeafReport is the verdict for one final domain-tree leaf.
type LeafReport struct {
	ID        int             `json:"id"              yaml:"id"`
	Status    string          `json:"status"          yaml:"status"`
	CheckTime time.Duration   `json:"check_time"      yaml:"check_time"`
	Timeout   time.Duration   `json:"timeout"         yaml:"timeout"`
	Model     *verifier.Model `json:"model,omitempty" yaml:"model,omitempty"`
}

func newReport(v *distributed.Verifier, at *addtree.AddTree, prop verifier.Property, model string, elapsed time.Duration) *Report {
	results := v.Results()

	rep := &Report{
		RunID:    v.RunID(),
		Model:    model,
		Property: prop.String(),
		State:    v.State().String(),
		Elapsed:  elapsed,
		Ensemble: at.Summarize(),
		Counts: Counts{
			Sat:     results.Count(verifier.StatusSat),
			Unsat:   results.Count(verifier.StatusUnsat),
			Unknown: results.Count(verifier.StatusUnknown),
		},
		Times: stats.Summarize(results.CheckTimes()),
	}

	if err := v.Err(); err != nil {
		rep.Error = err.Error()
	}

	for _, id := range results.IDs() {
		r := results[id]

		switch {
		case r.Pending:
			rep.Counts.Pending++
		case r.Split != nil:
			rep.Counts.Split++
		default:
			rep.Leaves = append(rep.Leaves, LeafReport{
				ID:        id,
				Status:    r.Status.String(),
				CheckTime: r.CheckTime,
				Timeout:   r.Timeout,
				Model:     r.Model,
			})
		}
	}

	return rep
}

// writeReport renders rep per rc. With an output path it writes the file,
// otherwise it writes to w.
func writeReport(w io.Writer, rc config.ReportConfig, rep *Report) error {
	if strings.HasSuffix(rc.Output, compressedReportSuffix) {
		dir, base := filepath.Split(rc.Output)

		err := persist.SaveState(dir, strings.TrimSuffix(base, compressedReportSuffix), persist.NewLZ4Codec(nil), rep)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}

		return nil
	}

	if rc.Output == "" {
		return encodeReport(w, rc.Format, rep)
	}

	return writeFile(rc.Output, func(fw io.Writer) error {
		return encodeReport(fw, rc.Format, rep)
	})
}

func encodeReport(w io.Writer, format string, rep *Report) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(rep)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()

		return enc.Encode(rep)
	case config.FormatTable, "":
		return renderReport(w, rep)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}
