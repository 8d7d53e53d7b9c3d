package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tmkoller/peridyn/internal/bond"
	"github.com/tmkoller/peridyn/internal/checkpoint"
	"github.com/tmkoller/peridyn/internal/comm"
	"github.com/tmkoller/peridyn/internal/config"
	"github.com/tmkoller/peridyn/internal/domain"
	"github.com/tmkoller/peridyn/internal/neighbor"
	"github.com/tmkoller/peridyn/internal/particle"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Archive string
	Step    int
}

// BuildReport summarizes a completed topology build.
type BuildReport struct {
	Name            string `json:"name"`
	Partitions      int    `json:"partitions"`
	Particles       int64  `json:"particles"`
	Bonds           int64  `json:"bonds"`
	MaxPartner      int    `json:"max_partner"`
	RunID           string `json:"run_id,omitempty"`
	Step            int    `json:"step,omitempty"`
	CheckpointBytes int    `json:"checkpoint_bytes,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <config.yaml>",
		Short: "Build the bond topology for a config",
		Long: `Build the bond topology for a config: generate the lattice, split it
across in-process partitions, exchange ghost layers, and bond every
particle pair within its horizon.

With --archive, each partition's restart stream is written to the given
archive under a fresh run.

Example:
  peridyn build sim.yaml
  peridyn build sim.yaml --archive runs.db --step 0 --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Archive, "archive", "", "path to a checkpoint archive to write")
	cmd.Flags().IntVar(&opts.Step, "step", 0, "step label for the written checkpoint")

	return cmd
}

func runBuild(opts *BuildOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	if opts.Step < 0 {
		return NewExitError(ExitCommandError, "step label must not be negative")
	}

	table, err := cfg.Table()
	if err != nil {
		return WrapExitError(ExitCommandError, "building horizon table", err)
	}
	influence, err := bond.ParseInfluence(cfg.Influence)
	if err != nil {
		return WrapExitError(ExitCommandError, "selecting influence model", err)
	}
	box := cfg.Box()
	decomp, err := domain.NewSlabDecomposition(box, cfg.Partitions)
	if err != nil {
		return WrapExitError(ExitCommandError, "decomposing domain", err)
	}
	specs := cfg.Particles()
	ghostCut := table.MaxCut() + cfg.SkinOrDefault()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var arch *checkpoint.Archive
	var runID string
	if opts.Archive != "" {
		arch, err = checkpoint.OpenArchive(opts.Archive)
		if err != nil {
			return WrapExitError(ExitCommandError, "opening archive", err)
		}
		defer func() {
			if closeErr := arch.Close(); closeErr != nil {
				log.Error("error closing archive", "error", closeErr)
			}
		}()
		run, err := arch.CreateRun(ctx, cfg.Name, cfg.Partitions)
		if err != nil {
			return WrapExitError(ExitCommandError, "registering run", err)
		}
		runID = run.ID
	}

	log.Info("building topology",
		"config", path,
		"partitions", cfg.Partitions,
		"particles", len(specs))

	stats := make([]bond.BuildStats, cfg.Partitions)
	bytesWritten := make([]int, cfg.Partitions)

	err = comm.RunGroup(ctx, cfg.Partitions, func(ctx context.Context, c comm.Communicator) error {
		rank := c.Rank()

		ps := particle.NewStore()
		for _, p := range specs {
			if decomp.Owner(p.X) != rank {
				continue
			}
			if _, err := ps.AddLocal(p.Tag, p.Type, p.X, p.X, p.Vfrac); err != nil {
				return err
			}
		}

		mgr, err := bond.NewManager(ps, c, table,
			bond.WithInfluence(influence),
			bond.WithLatticeSpacing(cfg.Lattice.Spacing),
			bond.WithPeriodicDomain(box.AnyPeriodic()),
			bond.WithLogger(log),
			bond.WithStoreOptions(bond.WithMemoryBudget(cfg.MemoryBudgetBytes)),
		)
		if err != nil {
			return err
		}

		plan, err := domain.BuildGhosts(ctx, c, decomp, ps, ghostCut)
		if err != nil {
			return err
		}
		mgr.SetForwardPlan(plan)

		finder, err := neighbor.NewFinder(neighbor.WithSkin(cfg.SkinOrDefault()))
		if err != nil {
			return err
		}
		list := finder.Build(ps, table.MaxCut())
		if err := mgr.Setup(ctx, list.Neigh); err != nil {
			return err
		}
		stats[rank] = mgr.Stats()

		if arch != nil {
			var buf bytes.Buffer
			if err := checkpoint.WriteStream(&buf, rank, c.Size(), ps, mgr.Store()); err != nil {
				return err
			}
			if err := arch.PutStream(ctx, runID, opts.Step, rank, buf.Bytes()); err != nil {
				return err
			}
			bytesWritten[rank] = buf.Len()
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitFailure, "building bond topology", err)
	}

	report := BuildReport{
		Name:       cfg.Name,
		Partitions: cfg.Partitions,
		Particles:  stats[0].Particles,
		Bonds:      stats[0].Bonds,
		MaxPartner: stats[0].MaxPartner,
	}
	if arch != nil {
		report.RunID = runID
		report.Step = opts.Step
		for _, n := range bytesWritten {
			report.CheckpointBytes += n
		}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(report)
	}

	w := cmd.OutOrStdout()
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "✓ built %s across %d partition(s)\n", report.Name, report.Partitions)
	p.Fprintf(w, "  particles:    %d\n", report.Particles)
	p.Fprintf(w, "  bonds:        %d\n", report.Bonds)
	p.Fprintf(w, "  max partners: %d\n", report.MaxPartner)
	if report.RunID != "" {
		p.Fprintf(w, "  checkpoint:   run %s step %d (%d bytes)\n", report.RunID, report.Step, report.CheckpointBytes)
	}
	return nil
}
