package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

// maxLeafRows bounds the per-leaf table; the JSON and YAML reports list all.
const maxLeafRows = 50

var statusColors = map[string]*color.Color{
	verifier.StatusSat.String():     color.New(color.FgRed, color.Bold),
	verifier.StatusUnsat.String():   color.New(color.FgGreen),
	verifier.StatusUnknown.String(): color.New(color.FgYellow),
}

func colorStatus(s string) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(s)
	}

	return s
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	return tbl
}

// verdict is the headline of a run.
func verdict(rep *Report) string {
	switch {
	case rep.Counts.Sat > 0:
		return colorStatus(verifier.StatusSat.String())
	case rep.State == distributed.StateCompleted.String() && rep.Counts.Unknown == 0:
		return colorStatus(verifier.StatusUnsat.String())
	default:
		return colorStatus(verifier.StatusUnknown.String())
	}
}

func renderReport(w io.Writer, rep *Report) error {
	summary := newTable()
	summary.SetTitle("Run " + rep.RunID)
	summary.AppendRows([]table.Row{
		{"Model", rep.Model},
		{"Property", rep.Property},
		{"Verdict", verdict(rep)},
		{"State", rep.State},
		{"Elapsed", rep.Elapsed.Round(timeRound).String()},
		{"Trees", humanize.Comma(int64(rep.Ensemble.Trees))},
		{"Leaves checked", humanize.Comma(int64(len(rep.Leaves)))},
		{"Boxes split", humanize.Comma(int64(rep.Counts.Split))},
	})

	if rep.Error != "" {
		summary.AppendRow(table.Row{"Error", color.New(color.FgRed).Sprint(rep.Error)})
	}

	if _, err := fmt.Fprintln(w, summary.Render()); err != nil {
		return err
	}

	counts := newTable()
	counts.AppendHeader(table.Row{"Status", "Leaves"})
	counts.AppendRows([]table.Row{
		{colorStatus(verifier.StatusSat.String()), humanize.Comma(int64(rep.Counts.Sat))},
		{colorStatus(verifier.StatusUnsat.String()), humanize.Comma(int64(rep.Counts.Unsat))},
		{colorStatus(verifier.StatusUnknown.String()), humanize.Comma(int64(rep.Counts.Unknown))},
	})

	if rep.Counts.Pending > 0 {
		counts.AppendRow(table.Row{"PENDING", humanize.Comma(int64(rep.Counts.Pending))})
	}

	if _, err := fmt.Fprintf(w, "\n%s\n", counts.Render()); err != nil {
		return err
	}

	t := rep.Times
	times := newTable()
	times.AppendHeader(table.Row{"Checks", "Total", "Mean", "Stddev", "Median", "P90", "P99", "Max"})
	times.AppendRow(table.Row{
		t.Count, t.Total.Round(timeRound), t.Mean.Round(timeRound), t.StdDev.Round(timeRound),
		t.Median.Round(timeRound), t.P90.Round(timeRound), t.P99.Round(timeRound), t.Max.Round(timeRound),
	})

	if _, err := fmt.Fprintf(w, "\n%s\n", times.Render()); err != nil {
		return err
	}

	return renderLeaves(w, rep.Leaves)
}

func renderLeaves(w io.Writer, leaves []LeafReport) error {
	if len(leaves) == 0 {
		return nil
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Leaf", "Status", "Check time", "Timeout", "Output", "Witness"})
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, WidthMax: witnessWidth},
	})

	for i, l := range leaves {
		if i == maxLeafRows {
			tbl.AppendFooter(table.Row{fmt.Sprintf("... %s more", humanize.Comma(int64(len(leaves)-maxLeafRows)))})

			break
		}

		output, witness := "", ""
		if l.Model != nil {
			output = fmt.Sprintf("%.6g", l.Model.Output)
			witness = fmt.Sprintf("%.6g", l.Model.X)
		}

		tbl.AppendRow(table.Row{
			l.ID, colorStatus(l.Status), l.CheckTime.Round(timeRound), l.Timeout, output, witness,
		})
	}

	_, err := fmt.Fprintf(w, "\n%s\n", tbl.Render())

	return err
}

const (
	timeRound    = 10 * time.Microsecond
	witnessWidth = 60
)

// writeFile creates path and hands it to fn.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err = fn(f); err != nil {
		f.Close()

		return err
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
