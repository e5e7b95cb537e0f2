package commands

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-import/internal/domain/import/service"
	"github.com/FACorreiaa/smart-import/pkg/money"
)

func newDryRunCommand(flags *globalFlags) *cobra.Command {
	var currency string
	var reportPath string

	cmd := &cobra.Command{
		Use:   "dry-run <file>",
		Short: "Run the full import against a throwaway in-memory ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := money.Normalize(currency)
			if !money.Known(code) {
				return fmt.Errorf("unsupported currency %q", currency)
			}

			p, err := flags.pipeline(cmd)
			if err != nil {
				return err
			}
			up, err := readUpload(args[0])
			if err != nil {
				return err
			}

			tenant := uuid.New()
			account := p.ledger.AddAccount(repository.Account{
				TenantID:     tenant,
				Name:         "Dry run",
				CurrencyCode: code,
			})

			res, err := p.svc.Analyze(cmd.Context(), tenant, tenant, up)
			if err != nil {
				return err
			}
			out, err := p.svc.Confirm(cmd.Context(), tenant, res.SessionID, service.ConfirmRequest{AccountID: account.ID})
			if err != nil {
				return err
			}

			if reportPath != "" {
				if err := writeReport(reportPath, out.Issues); err != nil {
					return err
				}
			}

			if flags.json {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printOutcome(cmd, out, p.ledger.Transactions())
			return nil
		},
	}

	cmd.Flags().StringVar(&currency, "currency", money.DefaultCurrency, "currency of the target account")
	cmd.Flags().StringVar(&reportPath, "report", "", "write row issues to this CSV file")

	return cmd
}

func printOutcome(cmd *cobra.Command, out *model.ImportOutcome, txns []repository.Transaction) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Imported:   %d\n", out.Imported)
	fmt.Fprintf(w, "Duplicates: %d\n", out.Duplicates)
	fmt.Fprintf(w, "Failed:     %d\n", out.Failed)

	var total int64
	code := money.DefaultCurrency
	for _, t := range txns {
		total += t.AmountMinor
		code = t.CurrencyCode
	}
	if len(txns) > 0 {
		fmt.Fprintf(w, "Net amount: %s\n", money.New(total, code).Display())
	}

	for _, issue := range out.Issues {
		fmt.Fprintf(w, "line %d [%s] %s\n", issue.Line, issue.Severity, issue.Message)
	}
}

func writeReport(path string, issues []model.Issue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&issues, f); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
