package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/forestcheck/internal/config"
	"github.com/Sumatoshi-tech/forestcheck/internal/observability"
	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

// InspectCommand holds the flags of the inspect command.
type InspectCommand struct {
	globals *Globals
	paths   bool
	bounds  []string
	format  string
}

// Inspection is the summary of one model.
type Inspection struct {
	Model    string          `json:"model"           yaml:"model"`
	Ensemble addtree.Summary `json:"ensemble"        yaml:"ensemble"`
	Features []FeatureSplits `json:"features"        yaml:"features"`
	Paths    []TreePaths     `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// FeatureSplits describes the thresholds used on one feature.
type FeatureSplits struct {
	Feature    int     `json:"feature"    yaml:"feature"`
	Thresholds int     `json:"thresholds" yaml:"thresholds"`
	Min        float64 `json:"min"        yaml:"min"`
	Max        float64 `json:"max"        yaml:"max"`
}

// TreePaths is the path-pruning result for one tree.
type TreePaths struct {
	Tree      int `json:"tree"      yaml:"tree"`
	Checked   int `json:"checked"   yaml:"checked"`
	Pruned    int `json:"pruned"    yaml:"pruned"`
	Reachable int `json:"reachable" yaml:"reachable"`
}

// NewInspectCommand creates the inspect subcommand.
func NewInspectCommand(g *Globals) *cobra.Command {
	ic := &InspectCommand{globals: g}

	cmd := &cobra.Command{
		Use:   "inspect <model.json>",
		Short: "Summarize a model",
		Long: `Print structural counts and per-feature split thresholds of a model.
With --paths, also prune tree paths that are infeasible inside the --bound box.`,
		Args: cobra.ExactArgs(1),
		RunE: ic.run,
	}

	cmd.Flags().BoolVar(&ic.paths, "paths", false, "report unreachable tree paths")
	cmd.Flags().StringSliceVar(&ic.bounds, "bound", nil, "input bound FEATURE:LO:HI, repeatable")
	cmd.Flags().StringVarP(&ic.format, "format", "f", config.DefaultFormat, "output format: table, json, yaml")

	return cmd
}

func (ic *InspectCommand) run(cmd *cobra.Command, args []string) error {
	box, err := parseBounds(ic.bounds)
	if err != nil {
		return err
	}

	sess, err := ic.globals.open(cmd, observability.ModeInspect, func(c *config.Config) {
		if cmd.Flags().Changed("format") {
			c.Report.Format = ic.format
		}
	})
	if err != nil {
		return err
	}

	defer sess.close(cmd)

	at, err := addtree.Read(args[0])
	if err != nil {
		return err
	}

	ins := &Inspection{Model: args[0], Ensemble: at.Summarize(), Features: featureSplits(at)}

	if ic.paths {
		prop := verifier.AnyOutput()
		prop.Inputs = box

		ins.Paths, err = treePaths(cmd, at, splittree.NewLeaf(at, 0, box), verifier.NewBoxFactory(prop))
		if err != nil {
			return err
		}
	}

	return writeInspection(cmd.OutOrStdout(), sess.cfg.Report.Format, ins)
}

func featureSplits(at *addtree.AddTree) []FeatureSplits {
	splits := at.Splits()
	out := make([]FeatureSplits, 0, len(splits))

	for _, f := range slices.Sorted(maps.Keys(splits)) {
		ts := splits[f]
		out = append(out, FeatureSplits{Feature: f, Thresholds: len(ts), Min: ts[0], Max: ts[len(ts)-1]})
	}

	return out
}

// treePaths prunes every tree against leaf in parallel.
func treePaths(cmd *cobra.Command, at *addtree.AddTree, leaf *splittree.Leaf, factory verifier.Factory) ([]TreePaths, error) {
	out := make([]TreePaths, at.Len())
	g, ctx := errgroup.WithContext(cmd.Context())

	for i := range at.Len() {
		g.Go(func() error {
			pruned, rep, err := verifier.CheckTreePaths(ctx, at, i, leaf, factory)
			if err != nil {
				return err
			}

			out[i] = TreePaths{
				Tree:      i,
				Checked:   rep.Checked,
				Pruned:    rep.Pruned,
				Reachable: len(pruned.ReachableLeaves(at, i)),
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func writeInspection(w io.Writer, format string, ins *Inspection) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(ins)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()

		return enc.Encode(ins)
	case config.FormatTable, "":
		return renderInspection(w, ins)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func renderInspection(w io.Writer, ins *Inspection) error {
	e := ins.Ensemble

	summary := newTable()
	summary.SetTitle(ins.Model)
	summary.AppendRows([]table.Row{
		{"Trees", humanize.Comma(int64(e.Trees))},
		{"Nodes", humanize.Comma(int64(e.Nodes))},
		{"Leaves", humanize.Comma(int64(e.Leaves))},
		{"Max depth", e.MaxDepth},
		{"Features", humanize.Comma(int64(e.Features))},
		{"Thresholds", humanize.Comma(int64(e.Thresholds))},
		{"Base score", fmt.Sprintf("%.6g", e.BaseScore)},
	})

	if _, err := fmt.Fprintln(w, summary.Render()); err != nil {
		return err
	}

	if len(ins.Features) > 0 {
		feats := newTable()
		feats.AppendHeader(table.Row{"Feature", "Thresholds", "Min", "Max"})

		for _, f := range ins.Features {
			feats.AppendRow(table.Row{f.Feature, f.Thresholds, fmt.Sprintf("%.6g", f.Min), fmt.Sprintf("%.6g", f.Max)})
		}

		if _, err := fmt.Fprintf(w, "\n%s\n", feats.Render()); err != nil {
			return err
		}
	}

	if len(ins.Paths) == 0 {
		return nil
	}

	paths := newTable()
	paths.AppendHeader(table.Row{"Tree", "Checked", "Pruned", "Reachable leaves"})

	var pruned int

	for _, p := range ins.Paths {
		paths.AppendRow(table.Row{p.Tree, p.Checked, p.Pruned, p.Reachable})
		pruned += p.Pruned
	}

	paths.AppendFooter(table.Row{"", "", humanize.Comma(int64(pruned)), ""})

	_, err := fmt.Fprintf(w, "\n%s\n", paths.Render())

	return err
}
