package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inspectJSON(t *testing.T, args ...string) *Inspection {
	t.Helper()

	out, err := execute(t, "", append([]string{"inspect", "--format", "json"}, args...)...)
	require.NoError(t, err)

	var ins Inspection

	require.NoError(t, json.Unmarshal([]byte(out), &ins))

	return &ins
}

func TestInspect_Summary(t *testing.T) {
	t.Parallel()

	ins := inspectJSON(t, depth2Model)

	assert.Equal(t, 1, ins.Ensemble.Trees)
	assert.Equal(t, 7, ins.Ensemble.Nodes)
	assert.Equal(t, 4, ins.Ensemble.Leaves)
	assert.Equal(t, 2, ins.Ensemble.MaxDepth)
	assert.Equal(t, []FeatureSplits{
		{Feature: 0, Thresholds: 1, Min: 2, Max: 2},
		{Feature: 1, Thresholds: 1, Min: 1, Max: 1},
		{Feature: 2, Thresholds: 1, Min: 5, Max: 5},
	}, ins.Features)
	assert.Empty(t, ins.Paths)
}

func TestInspect_PathsPruneContradiction(t *testing.T) {
	t.Parallel()

	ins := inspectJSON(t, contradictions, "--paths")

	require.Len(t, ins.Paths, 1)
	assert.Equal(t, TreePaths{Tree: 0, Checked: 6, Pruned: 1, Reachable: 3}, ins.Paths[0])
}

func TestInspect_PathsWithinBounds(t *testing.T) {
	t.Parallel()

	ins := inspectJSON(t, depth2Model, "--paths", "--bound", "0:-inf:2")

	require.Len(t, ins.Paths, 1)
	assert.Equal(t, 0, ins.Paths[0].Pruned)
	assert.Equal(t, 2, ins.Paths[0].Reachable)
}

func TestInspect_Table(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "inspect", contradictions, "--paths")
	require.NoError(t, err)

	assert.Contains(t, out, "Thresholds")
	assert.Contains(t, out, "Reachable leaves")
}
