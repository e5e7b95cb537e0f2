// Package commands implements the importctl command line.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/smart-import/internal/domain/import/antivirus"
	"github.com/FACorreiaa/smart-import/internal/domain/import/detector"
	"github.com/FACorreiaa/smart-import/internal/domain/import/repository"
	"github.com/FACorreiaa/smart-import/internal/domain/import/service"
	"github.com/FACorreiaa/smart-import/internal/domain/import/session"
	"github.com/FACorreiaa/smart-import/internal/domain/import/sniffer"
)

type globalFlags struct {
	verbose bool
	json    bool
	maxRows int
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "importctl",
		Short: "Inspect and dry-run bank statement imports",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log pipeline steps to stderr")
	rootCmd.PersistentFlags().BoolVar(&flags.json, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().IntVar(&flags.maxRows, "max-rows", 10000, "maximum data rows to read")

	rootCmd.AddCommand(newAnalyzeCommand(flags))
	rootCmd.AddCommand(newBanksCommand(flags))
	rootCmd.AddCommand(newDryRunCommand(flags))

	return rootCmd
}

func (f *globalFlags) logger(w io.Writer) *slog.Logger {
	if !f.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// pipeline is an import service backed by a throwaway in-memory ledger.
type pipeline struct {
	svc    *service.ImportService
	ledger *repository.MemoryLedger
}

func (f *globalFlags) pipeline(cmd *cobra.Command) (*pipeline, error) {
	catalog, err := detector.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("loading detection catalog: %w", err)
	}

	logger := f.logger(cmd.ErrOrStderr())
	ledger := repository.NewMemoryLedger()
	svc := service.NewImportService(
		catalog,
		session.NewStore(session.DefaultTTL, logger),
		ledger,
		antivirus.NewGuard(nil, antivirus.PolicyDisabled, logger),
		logger,
		service.WithMaxRows(f.maxRows),
	)
	return &pipeline{svc: svc, ledger: ledger}, nil
}

func readUpload(path string) (service.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return service.Upload{
		Filename:    filepath.Base(path),
		ContentType: contentTypeFor(path),
		Data:        data,
	}, nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return sniffer.MIMEXLSX
	default:
		return sniffer.MIMECSV
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
