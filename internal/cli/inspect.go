package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmkoller/peridyn/internal/checkpoint"
)

// InspectReport lists the contents of a checkpoint archive.
type InspectReport struct {
	Archive string      `json:"archive"`
	Runs    []RunDetail `json:"runs"`
}

// RunDetail is one run's metadata and recorded steps.
type RunDetail struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Ranks     int    `json:"ranks"`
	CreatedAt string `json:"created_at"`
	Steps     []int  `json:"steps"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <archive.db>",
		Short: "List the runs recorded in a checkpoint archive",
		Long: `List the runs recorded in a checkpoint archive, with their partition
counts and the steps each run checkpointed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Opening a missing path would create an empty archive in place.
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
	runs, err := arch.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing runs", err)
	}

	report := InspectReport{Archive: path, Runs: make([]RunDetail, 0, len(runs))}
	for _, run := range runs {
		steps, err := arch.Steps(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "listing steps", err)
		}
		report.Runs = append(report.Runs, RunDetail{
			ID:        run.ID,
			Name:      run.Name,
			Ranks:     run.Ranks,
			CreatedAt: run.CreatedAt.Format(time.RFC3339),
			Steps:     steps,
		})
		if !opts.Verbose {
			continue
		}
		for _, step := range steps {
			for rank := 0; rank < run.Ranks; rank++ {
				data, err := arch.GetStream(ctx, run.ID, step, rank)
				if errors.Is(err, checkpoint.ErrNotFound) {
					formatter.VerboseLog("stream: run=%s step=%d rank=%d missing", run.ID, step, rank)
					continue
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "reading stream", err)
				}
				hdr, err := checkpoint.PeekHeader(bytes.NewReader(data))
				if err != nil {
					return WrapExitError(ExitFailure, "decoding stream header", err)
				}
				formatter.VerboseLog("stream: run=%s step=%d rank=%d particles=%d bytes=%d",
					run.ID, step, hdr.Rank, hdr.Particles, len(data))
			}
		}
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s: %d run(s)\n", path, len(report.Runs))
	for _, run := range report.Runs {
		fmt.Fprintf(w, "  %s  %s  ranks=%d  steps=%v  created %s\n",
			run.ID, run.Name, run.Ranks, run.Steps, run.CreatedAt)
	}
	return nil
}
