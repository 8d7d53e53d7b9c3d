package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tmkoller/peridyn/internal/bond"
	"github.com/tmkoller/peridyn/internal/checkpoint"
	"github.com/tmkoller/peridyn/internal/particle"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
	Run  string
	Step int
}

// RestoreReport summarizes a verified checkpoint.
type RestoreReport struct {
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	Step       int    `json:"step"`
	Ranks      int    `json:"ranks"`
	Particles  int    `json:"particles"`
	Bonds      int    `json:"bonds"`
	MaxPartner int    `json:"max_partner"`
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore <archive.db>",
		Short: "Restore a checkpoint and verify its integrity",
		Long: `Restore one step of a run from a checkpoint archive into fresh stores
and verify it: every partition's stream must be present, decode cleanly,
carry the rank it was written from, and own its tags exclusively.

Example:
  peridyn restore runs.db --run 0190a7e2-... --step 0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run ID to restore (required)")
	cmd.Flags().IntVar(&opts.Step, "step", 0, "step label to restore")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runRestore(opts *RestoreOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = formatter.Error("archive", fmt.Sprintf("archive %s does not exist", path), nil)
			return WrapExitError(ExitCommandError, "archive not found", err)
		}
		return WrapExitError(ExitCommandError, "reading archive", err)
	}

	arch, err := checkpoint.OpenArchive(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening archive", err)
	}
	defer arch.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	run, err := arch.GetRun(ctx, opts.Run)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			_ = formatter.Error("run", fmt.Sprintf("run %s not found", opts.Run), nil)
			return WrapExitError(ExitCommandError, "run not found", err)
		}
		return WrapExitError(ExitCommandError, "reading run", err)
	}

	report := RestoreReport{
		RunID: run.ID,
		Name:  run.Name,
		Step:  opts.Step,
		Ranks: run.Ranks,
	}
	owners := make(map[int64]int)

	for rank := 0; rank < run.Ranks; rank++ {
		data, err := arch.GetStream(ctx, run.ID, opts.Step, rank)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNotFound) {
				return integrityFailure(formatter,
					fmt.Sprintf("no stream for rank %d at step %d", rank, opts.Step), err)
			}
			return WrapExitError(ExitCommandError, "reading stream", err)
		}
		formatter.VerboseLog("read stream: rank=%d bytes=%d", rank, len(data))

		ps := particle.NewStore()
		bs := bond.NewStore()
		if err := ps.Register(bs); err != nil {
			return WrapExitError(ExitFailure, "preparing stores", err)
		}
		hdr, err := checkpoint.ReadStream(bytes.NewReader(data), ps, bs)
		if err != nil {
			return integrityFailure(formatter,
				fmt.Sprintf("stream for rank %d does not decode", rank), err)
		}
		if hdr.Rank != rank {
			return integrityFailure(formatter,
				fmt.Sprintf("stream stored under rank %d was written from rank %d", rank, hdr.Rank), nil)
		}
		if hdr.Ranks != run.Ranks {
			return integrityFailure(formatter,
				fmt.Sprintf("stream for rank %d was written across %d partitions, run has %d",
					rank, hdr.Ranks, run.Ranks), nil)
		}

		tags := ps.Tags()
		for slot := 0; slot < ps.Nlocal(); slot++ {
			if prev, dup := owners[tags[slot]]; dup {
				return integrityFailure(formatter,
					fmt.Sprintf("tag %d owned by both rank %d and rank %d", tags[slot], prev, rank), nil)
			}
			owners[tags[slot]] = rank
			report.Bonds += bs.LiveBonds(slot)
		}
		report.Particles += hdr.Particles
		if bs.MaxPartner() > report.MaxPartner {
			report.MaxPartner = bs.MaxPartner()
		}
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}

	w := formatter.Writer
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "✓ restored %s run %s step %d\n", report.Name, report.RunID, report.Step)
	p.Fprintf(w, "  partitions:   %d\n", report.Ranks)
	p.Fprintf(w, "  particles:    %d\n", report.Particles)
	p.Fprintf(w, "  intact bonds: %d\n", report.Bonds)
	p.Fprintf(w, "  max partners: %d\n", report.MaxPartner)
	return nil
}

func integrityFailure(formatter *OutputFormatter, msg string, err error) error {
	_ = formatter.Error("integrity", msg, nil)
	if err != nil {
		return WrapExitError(ExitFailure, msg, err)
	}
	return NewExitError(ExitFailure, msg)
}
