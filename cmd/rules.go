package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/model"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage vendor categorization rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vendor rules in application order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("process"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rules, err := env.Store.ListVendorRules(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPATTERN\tCATEGORY\tJURISDICTION\tMATCHES\tLAST MATCHED")
		for _, r := range rules {
			last := "-"
			if r.LastMatchedAt != nil {
				last = r.LastMatchedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				r.ID, r.Pattern, r.DefaultCategory, r.DefaultJurisdiction, r.MatchCount, last)
		}
		return w.Flush()
	},
}

var (
	ruleCategory     string
	ruleJurisdiction string
)

var rulesAddCmd = &cobra.Command{
	Use:   "add <pattern>",
	Short: "Add a vendor rule (case-insensitive substring on the vendor token)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("process"); err != nil {
			return err
		}
		if ruleCategory == "" && ruleJurisdiction == "" {
			return eris.New("at least one of --category or --jurisdiction is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rule, err := env.Store.CreateVendorRule(ctx, &model.VendorRule{
			Pattern:             args[0],
			DefaultCategory:     ruleCategory,
			DefaultJurisdiction: ruleJurisdiction,
		})
		if err != nil {
			return err
		}
		fmt.Printf("rule %d created: %q -> category %q, jurisdiction %q\n",
			rule.ID, rule.Pattern, rule.DefaultCategory, rule.DefaultJurisdiction)
		return nil
	},
}

func init() {
	rulesAddCmd.Flags().StringVar(&ruleCategory, "category", "", "default category for matching vendors")
	rulesAddCmd.Flags().StringVar(&ruleJurisdiction, "jurisdiction", "", "default jurisdiction for matching vendors")
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd)
	rootCmd.AddCommand(rulesCmd)
}
