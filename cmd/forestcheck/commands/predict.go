package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/forestcheck/internal/config"
	"github.com/Sumatoshi-tech/forestcheck/internal/observability"
	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
)

// Sentinel errors for prediction input.
var (
	// ErrNoRows indicates an input without feature vectors.
	ErrNoRows = errors.New("no feature vectors in input")
	// ErrShortRow indicates a row with fewer features than the model reads.
	ErrShortRow = errors.New("row has too few features")
)

// stdinPath selects standard input.
const stdinPath = "-"

// PredictCommand holds the flags of the predict command.
type PredictCommand struct {
	globals *Globals
	input   string
	format  string
}

// Prediction is the ensemble output for one input row.
type Prediction struct {
	Row    int     `json:"row"    yaml:"row"`
	Output float64 `json:"output" yaml:"output"`
}

// NewPredictCommand creates the predict subcommand.
func NewPredictCommand(g *Globals) *cobra.Command {
	pc := &PredictCommand{globals: g}

	cmd := &cobra.Command{
		Use:   "predict <model.json>",
		Short: "Evaluate the ensemble on feature vectors",
		Long: `Evaluate the ensemble on every row of a CSV file or a JSON array of arrays.
A CSV header row is skipped when its first cell is not a number.`,
		Args: cobra.ExactArgs(1),
		RunE: pc.run,
	}

	cmd.Flags().StringVarP(&pc.input, "input", "i", stdinPath, "CSV or JSON feature vectors (- for stdin)")
	cmd.Flags().StringVarP(&pc.format, "format", "f", config.DefaultFormat, "output format: table, json, yaml")

	return cmd
}

func (pc *PredictCommand) run(cmd *cobra.Command, args []string) error {
	sess, err := pc.globals.open(cmd, observability.ModePredict, func(c *config.Config) {
		if cmd.Flags().Changed("format") {
			c.Report.Format = pc.format
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

	rows, err := pc.readRows(cmd.InOrStdin())
	if err != nil {
		return err
	}

	if n := at.NumFeatures(); n > 0 {
		for i, row := range rows {
			if len(row) < n {
				return fmt.Errorf("%w: row %d has %d, model uses %d", ErrShortRow, i, len(row), n)
			}
		}
	}

	outputs := at.Predict(rows)

	preds := make([]Prediction, len(outputs))
	for i, o := range outputs {
		preds[i] = Prediction{Row: i, Output: o}
	}

	sess.logger.Debug("predicted", "rows", len(rows), "model.trees", at.Len())

	return writePredictions(cmd.OutOrStdout(), sess.cfg.Report.Format, preds)
}

func (pc *PredictCommand) readRows(stdin io.Reader) ([][]float64, error) {
	r := stdin

	if pc.input != stdinPath {
		f, err := os.Open(pc.input)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()

		r = f
	}

	var (
		rows [][]float64
		err  error
	)

	if strings.EqualFold(filepath.Ext(pc.input), ".json") {
		rows, err = decodeJSONRows(r)
	} else {
		rows, err = decodeCSVRows(r)
	}

	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	return rows, nil
}

func decodeJSONRows(r io.Reader) ([][]float64, error) {
	var rows [][]float64

	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	return rows, nil
}

func decodeCSVRows(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if len(records) > 0 && len(records[0]) > 0 {
		if _, perr := strconv.ParseFloat(records[0][0], 64); perr != nil {
			records = records[1:]
		}
	}

	rows := make([][]float64, 0, len(records))

	for i, rec := range records {
		row := make([]float64, len(rec))

		for j, cell := range rec {
			v, perr := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if perr != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, j+1, perr)
			}

			row[j] = v
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func writePredictions(w io.Writer, format string, preds []Prediction) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(preds)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()

		return enc.Encode(preds)
	case config.FormatTable, "":
		tbl := newTable()
		tbl.AppendHeader(table.Row{"Row", "Output"})

		for _, p := range preds {
			tbl.AppendRow(table.Row{p.Row, fmt.Sprintf("%.6g", p.Output)})
		}

		tbl.AppendFooter(table.Row{"Rows", humanize.Comma(int64(len(preds)))})

		_, err := fmt.Fprintln(w, tbl.Render())

		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}
