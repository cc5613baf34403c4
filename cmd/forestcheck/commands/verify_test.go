package commands

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/forestcheck/pkg/persist"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

func verifyJSON(t *testing.T, args ...string) *Report {
	t.Helper()

	out, err := execute(t, "", append([]string{"verify", depth2Model, "--format", "json"}, args...)...)
	require.NoError(t, err)

	var rep Report

	require.NoError(t, json.Unmarshal([]byte(out), &rep))

	return &rep
}

func TestVerify_FindsWitness(t *testing.T) {
	t.Parallel()

	rep := verifyJSON(t, "--min", "3")

	assert.Equal(t, "completed", rep.State)
	assert.Empty(t, rep.Error)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 1, rep.Ensemble.Trees)
	assert.Zero(t, rep.Counts.Unknown)
	require.Positive(t, rep.Counts.Sat)

	for _, l := range rep.Leaves {
		if l.Status != verifier.StatusSat.String() {
			continue
		}

		require.NotNil(t, l.Model)
		assert.GreaterOrEqual(t, l.Model.Output, 3.0)
		assert.GreaterOrEqual(t, l.Model.X[0], 2.0)
		assert.Less(t, l.Model.X[2], 5.0)
	}

	assert.Equal(t, len(rep.Leaves), rep.Counts.Sat+rep.Counts.Unsat+rep.Counts.Unknown)
	assert.Equal(t, len(rep.Leaves), rep.Times.Count)
}

func TestVerify_Unreachable(t *testing.T) {
	t.Parallel()

	rep := verifyJSON(t, "--min", "4")

	assert.Equal(t, "completed", rep.State)
	assert.Zero(t, rep.Counts.Sat)
	assert.Zero(t, rep.Counts.Unknown)
	assert.Positive(t, rep.Counts.Unsat)
}

func TestVerify_InputBoundsRestrictSearch(t *testing.T) {
	t.Parallel()

	rep := verifyJSON(t, "--min", "3", "--bound", "0:-inf:2")

	assert.Zero(t, rep.Counts.Sat)
	assert.Positive(t, rep.Counts.Unsat)
}

func TestVerify_YAMLAndTable(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "verify", depth2Model, "--min", "3", "--format", "yaml")
	require.NoError(t, err)

	var doc map[string]any

	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "completed", doc["state"])

	out, err = execute(t, "", "verify", depth2Model, "--min", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Verdict")
	assert.Contains(t, out, "SAT")
	assert.Contains(t, out, "Median")
}

func TestVerify_CompressedReportAndSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	reportPath := filepath.Join(dir, "run.json.lz4")
	snapDir := filepath.Join(dir, "leaves")

	require.NoError(t, os.Mkdir(snapDir, 0o750))

	out, err := execute(t, "", "verify", depth2Model, "--min", "3",
		"--output", reportPath, "--snapshot-dir", snapDir, "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Empty(t, out)

	var rep Report

	require.NoError(t, persist.LoadState(dir, "run", persist.NewLZ4Codec(nil), &rep))
	assert.Equal(t, "completed", rep.State)

	snap, err := splittree.LoadSnapshot(snapDir, snapshotPrefix+rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, snap.RunID)
	assert.Len(t, snap.Leaves, len(rep.Leaves))
}

func TestVerify_PlainOutputFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")

	_, err := execute(t, "", "verify", depth2Model, "--min", "3", "--format", "json", "--output", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rep Report

	require.NoError(t, json.Unmarshal(data, &rep))
	assert.Positive(t, rep.Counts.Sat)
}

func TestVerify_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"bad_bound", []string{"verify", depth2Model, "--bound", "0:1"}, ErrInvalidBound},
		{"bad_bound_feature", []string{"verify", depth2Model, "--bound", "x:0:1"}, ErrInvalidBound},
		{"empty_bound", []string{"verify", depth2Model, "--bound", "0:3:1"}, ErrInvalidBound},
		{"empty_property", []string{"verify", depth2Model, "--min", "5", "--max", "1"}, verifier.ErrInvalidProperty},
		{"bad_format", []string{"verify", depth2Model, "--format", "xml"}, nil},
		{"missing_model", []string{"verify", "testdata/absent.json"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := execute(t, "", tt.args...)
			require.Error(t, err)

			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestParseBounds(t *testing.T) {
	t.Parallel()

	box, err := parseBounds([]string{"0:-1:1", "2:-inf:inf", "0:0:5"})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, box[0].Lo, 0)
	assert.InDelta(t, 1.0, box[0].Hi, 0)
	assert.True(t, math.IsInf(box[2].Lo, -1))
	assert.NotContains(t, box, 1)
}
