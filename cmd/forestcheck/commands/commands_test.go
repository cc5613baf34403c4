package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const (
	testConfig     = "testdata/forestcheck.yaml"
	depth2Model    = "testdata/depth2.json"
	contradictions = "testdata/contradicting.json"
)

// execute runs a fresh root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	g := &Globals{}
	root := &cobra.Command{Use: "forestcheck", SilenceUsage: true, SilenceErrors: true}
	g.Register(root)
	root.AddCommand(NewVerifyCommand(g), NewPredictCommand(g), NewInspectCommand(g))

	var stdout, stderr bytes.Buffer

	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", testConfig}, args...))

	err := root.Execute()

	return stdout.String(), err
}
