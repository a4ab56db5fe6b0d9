package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/asycuda-export/internal/matcher"
)

var matchThreshold int

// matchCmd probes the catalog the way the builder does for one description.
var matchCmd = &cobra.Command{
	Use:   "match <description>",
	Short: "Show the catalog matches for an item description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if matchThreshold < 0 || matchThreshold > 100 {
			return fmt.Errorf("threshold must be in 0..100, got %d", matchThreshold)
		}
		a, err := loadApp(false)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		cat := a.catalogs.Current()
		results := matcher.Match(query, cat, matchThreshold)

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintf(out, "No catalog entry scores %d or more for %q\n", matchThreshold, query)
		} else {
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tHS CODE\tKEY")
			for _, r := range results {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Score, r.HSCode, r.Key)
			}
			tw.Flush()
		}

		if kw, ok := matcher.MatchKeyword(query, cat); ok {
			fmt.Fprintf(out, "Keyword fallback: %s (%s)\n", kw.HSCode, kw.Key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().IntVar(&matchThreshold, "threshold", 80, "Minimum similarity score (0-100)")
}
