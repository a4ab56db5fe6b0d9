package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/asycuda-export/internal/ledger"
)

var (
	historyLimit int
	historyRun   string
)

// historyCmd lists declarations recorded in the ledger.
var historyCmd = &cobra.Command{
	Use:   "history [registration]",
	Short: "List declarations recorded in the ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.openBackends(cmd.Context(), false); err != nil {
			return err
		}
		if a.ledger == nil {
			return errors.New("no ledger configured (ledger.driver is none)")
		}

		var recs []ledger.DeclarationRecord
		switch {
		case len(args) == 1:
			rec, err := a.ledger.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			recs = append(recs, *rec)
		case historyRun != "":
			recs, err = a.ledger.ListByRun(cmd.Context(), historyRun)
		default:
			recs, err = a.ledger.Recent(cmd.Context(), historyLimit)
		}
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REGISTRATION\tSTATUS\tMAPPING\tITEMS\tVALUE\tERRORS\tCREATED\tARTIFACTS")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s %s\t%d\t%s\t%s\n",
				r.Registration, r.Status, r.MappingCode, r.ItemCount,
				r.TotalValue.StringFixed(2), r.Currency, r.ErrorCount,
				r.CreatedAt.Format("2006-01-02 15:04"), strings.Join(r.Artifacts, ","))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of recent declarations to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "List the declarations of one processing run")
}
