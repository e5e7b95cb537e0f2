package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/service"
)

func newAnalyzeCommand(flags *globalFlags) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Detect the bank and column mapping of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.pipeline(cmd)
			if err != nil {
				return err
			}
			up, err := readUpload(args[0])
			if err != nil {
				return err
			}

			tenant := uuid.New()
			res, err := p.svc.Analyze(cmd.Context(), tenant, tenant, up)
			if err != nil {
				return err
			}

			var rows *service.PreviewResult
			if preview {
				rows, err = p.svc.Preview(cmd.Context(), tenant, res.SessionID, nil)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if flags.json {
				return printJSON(out, struct {
					Analysis *service.AnalyzeResult `json:"analysis"`
					Preview  *service.PreviewResult `json:"preview,omitempty"`
				}{res, rows})
			}
			printAnalysis(out, res)
			if rows != nil {
				printPreview(out, rows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&preview, "preview", false, "also print the transformed leading rows")

	return cmd
}

func printAnalysis(w io.Writer, res *service.AnalyzeResult) {
	fmt.Fprintf(w, "File:       %s\n", res.Filename)
	fmt.Fprintf(w, "Rows:       %d\n", res.RowCount)
	if res.DetectedBank != nil {
		fmt.Fprintf(w, "Bank:       %s (%.2f)\n", res.DetectedBank.DisplayName, res.DetectedBank.Confidence)
	} else {
		fmt.Fprintln(w, "Bank:       unknown")
	}
	fmt.Fprintf(w, "Confidence: %.2f\n", res.DetectedColumns.OverallConfidence)
	if sep := res.DetectedColumns.DecimalSeparator; sep != "" {
		fmt.Fprintf(w, "Decimal:    %q\n", sep)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tCOLUMN\tINDEX\tCONFIDENCE")
	for _, f := range model.Fields {
		fm, ok := res.DetectedColumns.Mappings[f]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\n", f, fm.SourceHeaderName, fm.SourceColumnIndex, fm.Confidence)
	}
	_ = tw.Flush()

	if !res.DetectedColumns.RequiredFieldsValid {
		fmt.Fprintf(w, "\nMissing required fields: %s\n", strings.Join(res.DetectedColumns.MissingFields, ", "))
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func printPreview(w io.Writer, res *service.PreviewResult) {
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tDATE\tAMOUNT\tTYPE\tDESCRIPTION")
	for _, row := range res.Rows {
		if row.Error != "" {
			fmt.Fprintf(tw, "%d\terror: %s\t\t\t\n", row.Line, row.Error)
			continue
		}
		t := row.Transformed
		date := ""
		if t.HasDate() {
			date = t.Date.Format("2006-01-02")
		}
		amount := ""
		if t.Amount.Valid {
			amount = t.Amount.Decimal.StringFixed(2)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", row.Line, date, amount, t.Type, t.Description)
	}
	_ = tw.Flush()
}
