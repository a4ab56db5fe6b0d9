package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var catalogFilter string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the HS code reference catalog",
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog version and table sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		st := a.catalogs.Current().Stats()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version:    %s\n", st.Version)
		fmt.Fprintf(out, "Products:   %d\n", st.Products)
		fmt.Fprintf(out, "HS codes:   %d\n", st.HSCodes)
		fmt.Fprintf(out, "Keywords:   %d\n", st.Keywords)
		fmt.Fprintf(out, "Countries:  %d\n", st.Countries)
		fmt.Fprintf(out, "Offices:    %d\n", st.Offices)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog products",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		cat := a.catalogs.Current()
		filter := strings.ToLower(catalogFilter)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "HS CODE\tKEY\tCATEGORY\tORIGIN\tIMPORT ENTRY")
		for i := 0; i < cat.Len(); i++ {
			e := cat.Entry(i)
			if filter != "" && !strings.Contains(strings.ToLower(e.Key), filter) && !strings.HasPrefix(e.HSCode, filter) {
				continue
			}
			entry := ""
			if e.CNumber != "" {
				entry = fmt.Sprintf("%s/%d", e.CNumber, e.Line)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.HSCode, e.Key, e.Category, e.Origin, entry)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogStatsCmd, catalogListCmd)
	catalogListCmd.Flags().StringVar(&catalogFilter, "filter", "", "Only list keys containing this text or HS codes with this prefix")
}
