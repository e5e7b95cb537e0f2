package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/smart-import/internal/domain/import/detector"
)

func newBanksCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "banks",
		Short: "List the bank formats the detector recognizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := detector.LoadCatalog()
			if err != nil {
				return fmt.Errorf("loading detection catalog: %w", err)
			}
			banks := detector.NewBankDetector(catalog).Signatures()

			if flags.json {
				return printJSON(cmd.OutOrStdout(), banks)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDECIMAL\tDATE\tHEADERS")
			for _, b := range banks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					b.ID, b.DisplayName, b.DecimalSeparator, b.DateFormatHint, strings.Join(b.ExpectedHeaders, "; "))
			}
			return tw.Flush()
		},
	}
}
