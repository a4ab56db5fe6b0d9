// =============================================================================
// ASYCUDA Export - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   asycuda-export validate                  # check config.yaml and mappings
//   asycuda-export validate out/*.xml out/*.txt
//
// With no arguments the command loads and validates the configuration
// without processing anything. With arguments it parses exported XML and
// delimited text declarations and re-runs the validation rules on them,
// including the duplicate registration check across the given files.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/emitter"
	"github.com/ginjaninja78/asycuda-export/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate [artifact...]",
	Short: "Validate the configuration or exported declarations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runValidateConfig(cmd)
		}
		return runValidateArtifacts(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&strict, "strict", false, "Treat validation warnings as errors")
}

func runValidateConfig(cmd *cobra.Command) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration OK: %s\n", cfgFile)
	fmt.Fprintf(out, "Catalog:  %s\n", a.catalogs.Current().Version())
	for _, m := range a.mappings {
		fmt.Fprintf(out, "Mapping:  %s (%s) patterns=%s\n", m.Name, m.Code, strings.Join(m.FileMatchingPatterns, ","))
	}
	return nil
}

func runValidateArtifacts(cmd *cobra.Command, paths []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}

	decls := make([]*declaration.Declaration, 0, len(paths))
	for _, p := range paths {
		d, err := parseArtifact(p)
		if err != nil {
			return err
		}
		decls = append(decls, d)
	}

	v := validation.NewValidatorWithOptions(a.catalogs.Current(), validation.Options{TreatWarningsAsErrors: strict})
	results := v.ValidateBatch(decls)

	out := cmd.OutOrStdout()
	invalid := 0
	for i, res := range results {
		status := "valid"
		if !res.Valid {
			status = "INVALID"
			invalid++
		}
		fmt.Fprintf(out, "%s: %s (%d errors, %d warnings)\n", paths[i], status, res.ErrorCount, res.WarningCount)
		if len(res.Diagnostics) > 0 {
			fmt.Fprintln(out, validation.FormatDiagnostics(res.Diagnostics))
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d declaration(s) failed validation", invalid, len(results))
	}
	return nil
}

// parseArtifact reads an exported declaration, choosing the parser by
// extension.
func parseArtifact(path string) (*declaration.Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var d *declaration.Declaration
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		d, err = emitter.ParseMarkup(data)
	case ".txt":
		d, err = emitter.ParseDelimited(data)
	default:
		return nil, fmt.Errorf("%s: only .xml and .txt declarations can be validated", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return d, nil
}
