package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/ingest"
)

var importSource string

var importCmd = &cobra.Command{
	Use:   "import <statement-file>",
	Short: "Import a bank statement (CSV or XLSX) with duplicate suppression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		if importSource == "" {
			return eris.New("--source is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "import: init store")
		}
		defer st.Close()

		path := args[0]
		im := ingest.NewImporter(st)

		var report *ingest.Report
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx":
			report, err = im.ImportXLSX(ctx, importSource, path)
		case ".csv":
			f, openErr := os.Open(path)
			if openErr != nil {
				return eris.Wrap(openErr, "import: open file")
			}
			defer f.Close()
			report, err = im.ImportCSV(ctx, importSource, f)
		default:
			return eris.Errorf("import: unsupported file type %q", filepath.Ext(path))
		}
		if err != nil {
			return err
		}

		fmt.Printf("batch %s: imported %d, duplicates %d, skipped inbound %d, row errors %d\n",
			report.BatchID, report.Imported, report.Duplicates, report.SkippedInbound, len(report.RowErrors))
		for _, re := range report.RowErrors {
			fmt.Printf("  row %d: %s\n", re.Row, re.Msg)
		}
		if len(report.RowErrors) > 0 {
			zap.L().Warn("import finished with row errors",
				zap.Int("row_errors", len(report.RowErrors)))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "bank feed identifier (account/card)")
	rootCmd.AddCommand(importCmd)
}
