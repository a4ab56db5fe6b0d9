// =============================================================================
// ASYCUDA Export - Process Command
// =============================================================================
//
// This file defines the 'process' command, the main command of the tool. It
// turns every sales report in the input directory into an export
// declaration.
//
// COMMAND USAGE:
//   asycuda-export process [flags]
//
// FLAGS:
//   --dry-run        : Build and validate without writing anything
//   --file           : Process only these files (repeatable)
//   --mapping        : Use only the mapping configuration with this name or code
//   --strict         : Treat validation warnings as errors
//   --prune-archives : Remove archived inputs older than this duration
//
// PROCESSING PIPELINE:
//   1. Load configuration, mappings and the reference catalog
//   2. Open storage, ledger, sequencer and notifier
//   3. Discover sales reports in the input directory
//   4. For each file (concurrently):
//      a. Match it to a mapping configuration
//      b. Read the report
//      c. Build and validate the declaration
//      d. Export and store the artifacts and reports
//      e. Record it in the ledger and publish a notification
//      f. Archive the input
//   5. Write the processing summary
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/pipeline"
	"github.com/ginjaninja78/asycuda-export/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	dryRun        bool
	filePaths     []string
	mappingFilter string
	strict        bool
	pruneArchives time.Duration
)

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Convert sales reports into export declarations",
	Long: `The process command scans the input directory for sales reports (.csv,
.xlsx), matches each one to a mapping configuration and converts it into an
ASYCUDA export declaration.

Files are processed concurrently. A file that fails does not stop the others
unless continue_on_error is false.

On success:
  - The artifacts are written to the configured storage
  - validation_results.json and error_details.json are written per report
  - The declaration is recorded in the ledger
  - The sales report is moved to the input archive

On error:
  - The reports describe what went wrong
  - The sales report remains in the input directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build and validate without writing any output")
	processCmd.Flags().StringSliceVar(&filePaths, "file", nil, "Process only these files")
	processCmd.Flags().StringVar(&mappingFilter, "mapping", "", "Use only the mapping with this name or code")
	processCmd.Flags().BoolVar(&strict, "strict", false, "Treat validation warnings as errors")
	processCmd.Flags().DurationVar(&pruneArchives, "prune-archives", 0, "Remove archived inputs older than this (e.g. 720h)")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(cmd *cobra.Command) error {
	ctx := cmd.Context()

	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if mappingFilter != "" {
		a.mappings, err = filterMappings(a.mappings, mappingFilter)
		if err != nil {
			return err
		}
	}

	if err := a.cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := a.openBackends(ctx, true); err != nil {
		return err
	}

	files := utils.NewFileManager(a.cfg.InputDir, a.cfg.InputArchiveDir)

	runner := &pipeline.Runner{
		Main:     a.cfg,
		Mappings: a.mappings,
		Pipeline: pipeline.New(a.catalogs, pipeline.Options{
			Sequencer:      a.sequencer,
			Logger:         a.logger,
			StrictWarnings: strict,
		}),
		Storage:  a.storage,
		Files:    files,
		Notifier: a.notifier,
		DryRun:   dryRun,
		Logger:   a.logger,
	}
	if a.ledger != nil {
		runner.Ledger = a.ledger
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== ASYCUDA Export ===")
	fmt.Fprintf(out, "Loaded %d mapping configuration(s), catalog %s\n", len(a.mappings), a.catalogs.Current().Version())

	summary, err := runner.Run(ctx, filePaths...)
	if err != nil {
		return err
	}

	// =========================================================================
	// PRINT SUMMARY
	// =========================================================================

	for _, pf := range summary.ProcessedFiles {
		fmt.Fprintf(out, "  ✓ %s -> %s (%d items)\n", filepath.Base(pf.InputFile), pf.Registration, pf.Items)
	}
	for _, ff := range summary.FailedFilesList {
		fmt.Fprintf(out, "  ✗ %s [%s]: %s\n", filepath.Base(ff.InputFile), ff.ErrorType, ff.ErrorMessage)
	}

	fmt.Fprintln(out, "\n=== Processing Complete ===")
	fmt.Fprintf(out, "Total files:     %d\n", summary.TotalFiles)
	fmt.Fprintf(out, "Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Fprintf(out, "Errors:          %d\n", summary.FailedFiles)
	fmt.Fprintf(out, "Time elapsed:    %s\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))

	if pruneArchives > 0 && !dryRun {
		removed, err := utils.CleanOldArchives(a.cfg.InputArchiveDir, pruneArchives)
		if err != nil {
			a.logger.Warn("archive pruning failed", "error", err)
		} else if removed > 0 {
			fmt.Fprintf(out, "Pruned %d archived file(s)\n", removed)
		}
	}

	if summary.FailedFiles > 0 && !a.cfg.ContinueOnError {
		return fmt.Errorf("%d file(s) failed", summary.FailedFiles)
	}
	return nil
}

// filterMappings keeps the mapping whose name or code equals filter.
func filterMappings(mappings []*config.MappingConfig, filter string) ([]*config.MappingConfig, error) {
	for _, m := range mappings {
		if strings.EqualFold(m.Name, filter) || (m.Code != "" && strings.EqualFold(m.Code, filter)) {
			return []*config.MappingConfig{m}, nil
		}
	}
	return nil, fmt.Errorf("no mapping configuration named %q", filter)
}
