// =============================================================================
// ASYCUDA Export - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (asycuda-export)
//   ├── processCmd   (asycuda-export process)
//   ├── validateCmd  (asycuda-export validate)
//   ├── matchCmd     (asycuda-export match)
//   ├── catalogCmd   (asycuda-export catalog)
//   ├── historyCmd   (asycuda-export history)
//   ├── serveCmd     (asycuda-export serve)
//   └── versionCmd   (asycuda-export version)
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "asycuda-export",
	Short: "Convert duty-free sales reports into ASYCUDA export declarations",
	Long: `asycuda-export turns the sales reports of duty-free shops into ASYCUDA
export declarations.

Each report becomes one declaration: sold items are matched to HS codes
through the reference catalog, weights and packages are estimated, and the
declaration is validated before it is written as XML, delimited text, XLSX
and a printable HTML page.

Example Usage:
  asycuda-export process                        # Process the input directory
  asycuda-export process --file report.csv      # Process a single report
  asycuda-export validate output/*.xml          # Re-validate exported files
  asycuda-export match "silver bracelet"        # Probe the HS code catalog
  asycuda-export serve                          # Run the HTTP API`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main(). SIGINT and
// SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
