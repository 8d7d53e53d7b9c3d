package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/tmkoller/peridyn/internal/config"
)

// ValidationResult holds the outcome of config validation.
type ValidationResult struct {
	Valid      bool    `json:"valid"`
	Name       string  `json:"name,omitempty"`
	Particles  int     `json:"particles,omitempty"`
	Partitions int     `json:"partitions,omitempty"`
	MaxCutoff  float64 `json:"max_cutoff,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a simulation config",
		Long: `Validate a simulation config against the embedded schema and the
cross-field rules, without building anything.

Reports the lattice the config would generate, so a bad spacing or box
is visible before a build is attempted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = formatter.Error("config", err.Error(), nil)
			return WrapExitError(ExitCommandError, "reading config", err)
		}
		if opts.Format == "json" {
			_ = formatter.Success(ValidationResult{Valid: false, Error: err.Error()})
		} else {
			fmt.Fprintln(formatter.Writer, "✗ config is invalid")
			fmt.Fprintf(formatter.Writer, "  %v\n", err)
		}
		return WrapExitError(ExitFailure, "config is invalid", err)
	}

	table, err := cfg.Table()
	if err != nil {
		return WrapExitError(ExitFailure, "building horizon table", err)
	}

	result := ValidationResult{
		Valid:      true,
		Name:       cfg.Name,
		Particles:  len(cfg.Particles()),
		Partitions: cfg.Partitions,
		MaxCutoff:  table.MaxCut(),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", result.Name)
	fmt.Fprintf(formatter.Writer, "  particles:  %d\n", result.Particles)
	fmt.Fprintf(formatter.Writer, "  partitions: %d\n", result.Partitions)
	fmt.Fprintf(formatter.Writer, "  max cutoff: %g\n", result.MaxCutoff)
	return nil
}
