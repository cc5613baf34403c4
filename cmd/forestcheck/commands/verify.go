package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/forestcheck/internal/config"
	"github.com/Sumatoshi-tech/forestcheck/internal/observability"
	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
	"github.com/Sumatoshi-tech/forestcheck/pkg/splittree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

// ErrInvalidBound indicates a malformed --bound flag.
var ErrInvalidBound = errors.New("bound must be FEATURE:LO:HI")

// snapshotPrefix is the basename prefix of saved leaf snapshots.
const snapshotPrefix = "leaves-"

// VerifyCommand holds the flags of the verify command.
type VerifyCommand struct {
	globals *Globals

	outputMin float64
	outputMax float64
	bounds    []string

	workers       int
	timeoutStart  time.Duration
	timeoutMax    time.Duration
	timeoutRate   float64
	saturate      float64
	saturateStart bool
	stopWhenSat   bool
	checkPaths    bool
	precheckLimit int

	format      string
	output      string
	snapshotDir string
	metricsAddr string
}

// NewVerifyCommand creates the verify subcommand.
func NewVerifyCommand(g *Globals) *cobra.Command {
	vc := &VerifyCommand{globals: g}

	cmd := &cobra.Command{
		Use:   "verify <model.json>",
		Short: "Search the input space for ensemble outputs in a range",
		Long: `Split the input space of the model into boxes and decide, per box, whether
some input produces an output between --min and --max. Boxes that time out
are split further and retried with a longer timeout.`,
		Args: cobra.ExactArgs(1),
		RunE: vc.run,
	}

	f := cmd.Flags()
	f.Float64Var(&vc.outputMin, "min", math.Inf(-1), "lower bound on the ensemble output")
	f.Float64Var(&vc.outputMax, "max", math.Inf(1), "upper bound on the ensemble output")
	f.StringSliceVar(&vc.bounds, "bound", nil, "input bound FEATURE:LO:HI, repeatable (LO/HI accept -inf/inf)")

	f.IntVar(&vc.workers, "workers", 0, "number of parallel workers (0 = use CPU count)")
	f.DurationVar(&vc.timeoutStart, "timeout-start", config.DefaultTimeoutStart, "initial per-box solver timeout")
	f.DurationVar(&vc.timeoutMax, "timeout-max", config.DefaultTimeoutMax, "largest per-box solver timeout")
	f.Float64Var(&vc.timeoutRate, "timeout-rate", config.DefaultTimeoutRate, "timeout growth factor after each split")
	f.Float64Var(&vc.saturate, "saturate", config.DefaultSaturateFactor, "initial boxes per worker (0 disables)")
	f.BoolVar(&vc.saturateStart, "saturate-from-start", config.DefaultSaturateStart, "split the input space before the first dispatch")
	f.BoolVar(&vc.stopWhenSat, "stop-when-sat", config.DefaultStopWhenSat, "stop at the first satisfying box")
	f.BoolVar(&vc.checkPaths, "check-paths", config.DefaultCheckPaths, "prune unreachable tree paths before solving")
	f.IntVar(&vc.precheckLimit, "precheck-limit", config.DefaultPrecheckLimit, "largest leaf count for the SAT pre-check (0 disables)")

	f.StringVarP(&vc.format, "format", "f", config.DefaultFormat, "report format: table, json, yaml")
	f.StringVarP(&vc.output, "output", "o", "", "report file (default stdout; a .lz4 suffix compresses JSON)")
	f.StringVar(&vc.snapshotDir, "snapshot-dir", "", "directory for the final domain-tree leaves")
	f.StringVar(&vc.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address during the run")

	return cmd
}

// overrides copies explicitly set flags over the loaded config.
func (vc *VerifyCommand) overrides(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		f := cmd.Flags()

		if f.Changed("workers") {
			c.Pool.Workers = vc.workers
		}

		if f.Changed("timeout-start") {
			c.Verify.TimeoutStart = vc.timeoutStart
		}

		if f.Changed("timeout-max") {
			c.Verify.TimeoutMax = vc.timeoutMax
		}

		if f.Changed("timeout-rate") {
			c.Verify.TimeoutRate = vc.timeoutRate
		}

		if f.Changed("saturate") {
			c.Verify.SaturateFactor = vc.saturate
		}

		if f.Changed("saturate-from-start") {
			c.Verify.SaturateFromStart = vc.saturateStart
		}

		if f.Changed("stop-when-sat") {
			c.Verify.StopWhenSat = vc.stopWhenSat
		}

		if f.Changed("check-paths") {
			c.Verify.CheckPaths = vc.checkPaths
		}

		if f.Changed("precheck-limit") {
			c.Verify.PrecheckLimit = vc.precheckLimit
		}

		if f.Changed("format") {
			c.Report.Format = vc.format
		}

		if f.Changed("output") {
			c.Report.Output = vc.output
		}

		if f.Changed("snapshot-dir") {
			c.Report.SnapshotDir = vc.snapshotDir
		}

		if f.Changed("metrics-addr") {
			c.Observability.MetricsAddr = vc.metricsAddr
		}
	}
}

func (vc *VerifyCommand) run(cmd *cobra.Command, args []string) error {
	prop, err := vc.property()
	if err != nil {
		return err
	}

	sess, err := vc.globals.open(cmd, observability.ModeVerify, vc.overrides(cmd))
	if err != nil {
		return err
	}

	defer sess.close(cmd)

	cfg := sess.cfg
	log := sess.logger

	if cfg.Observability.MetricsAddr != "" {
		srv, srvErr := observability.NewDiagnosticsServer(cfg.Observability.MetricsAddr, sess.providers.MetricsHandler)
		if srvErr != nil {
			return srvErr
		}

		defer srv.Close()

		log.Info("diagnostics server listening", "addr", srv.Addr())
	}

	at, err := addtree.Read(args[0])
	if err != nil {
		return err
	}

	vm, err := observability.NewVerifyMetrics(sess.providers.Meter)
	if err != nil {
		return err
	}

	st := splittree.New(at, prop.Inputs)
	factory := verifier.NewBoxFactory(prop, cfg.BoxOptions()...)

	opts := append(cfg.VerifyOptions(),
		distributed.WithLogger(log),
		distributed.WithMetrics(vm),
		distributed.WithTracer(sess.providers.Tracer),
	)

	v, err := distributed.New(st, at, factory, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log.Info("verify started", "run.id", v.RunID(), "model", args[0], "property", prop.String())

	start := time.Now()
	checkErr := v.Check(ctx)
	elapsed := time.Since(start)

	rep := newReport(v, at, prop, args[0], elapsed)

	if err = writeReport(cmd.OutOrStdout(), cfg.Report, rep); err != nil {
		return errors.Join(checkErr, err)
	}

	if cfg.Report.SnapshotDir != "" {
		if err = saveLeaves(cfg.Report.SnapshotDir, v.RunID(), st); err != nil {
			return errors.Join(checkErr, err)
		}

		log.Info("leaves saved", "dir", cfg.Report.SnapshotDir, "leaves", st.NumLeaves())
	}

	if checkErr != nil && !errors.Is(checkErr, context.Canceled) {
		return fmt.Errorf("verify: %w", checkErr)
	}

	return nil
}

// property builds the searched property from the output and input flags.
func (vc *VerifyCommand) property() (verifier.Property, error) {
	prop := verifier.Property{OutputMin: vc.outputMin, OutputMax: vc.outputMax}

	box, err := parseBounds(vc.bounds)
	if err != nil {
		return prop, err
	}

	prop.Inputs = box

	return prop, prop.Validate()
}

func parseBounds(bounds []string) (domain.Box, error) {
	box := domain.Box{}

	for _, bound := range bounds {
		parts := strings.Split(bound, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBound, bound)
		}

		feature, err := strconv.Atoi(parts[0])
		if err != nil || feature < 0 {
			return nil, fmt.Errorf("%w: feature %q", ErrInvalidBound, parts[0])
		}

		lo, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBound, err)
		}

		hi, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBound, err)
		}

		d, ok := box.Get(feature).Intersect(domain.New(lo, hi))
		if !ok {
			return nil, fmt.Errorf("%w: empty range %q", ErrInvalidBound, bound)
		}

		box[feature] = d
	}

	return box, nil
}

// saveLeaves writes the live domain-tree leaves as an LZ4 snapshot.
func saveLeaves(dir, runID string, st *splittree.SplitTree) error {
	ids := st.Leaves()
	snap := &splittree.Snapshot{RunID: runID, Leaves: make([]*splittree.Leaf, 0, len(ids))}

	for _, id := range ids {
		l, err := st.Leaf(id)
		if err != nil {
			return err
		}

		snap.Leaves = append(snap.Leaves, l)
	}

	return splittree.SaveSnapshot(dir, snapshotPrefix+runID, snap)
}
