package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest expense records from a JSON-lines file or stdin",
	Long:  "Each line is one expense payload. Re-ingesting an external id already stored counts as a duplicate, never a second row.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "ingest: init store")
		}
		defer st.Close()

		var r io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "ingest: open file")
			}
			defer f.Close()
			r = f
		}

		report, err := ingest.NewExpenseService(st, nil).IngestStream(ctx, r)
		if err != nil {
			return err
		}

		fmt.Printf("ingested %d, duplicates %d, row errors %d\n",
			report.Ingested, report.Duplicates, len(report.RowErrors))
		for _, re := range report.RowErrors {
			fmt.Printf("  line %d: %s\n", re.Row, re.Msg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
