package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/prospect-cli/internal/commission"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	commissionAgency string
	commissionSuburb string
	commissionJSON   bool
)

var commissionCmd = &cobra.Command{
	Use:   "commission",
	Short: "Roll up commission by agency, agent, and street",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		properties, err := st.FetchProperties(cmd.Context(), store.PropertyFilter{
			Agency: commissionAgency,
			Suburb: commissionSuburb,
		})
		if err != nil {
			return err
		}

		summary := commission.Rollup(properties, initSuburbs())
		if commissionJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		renderSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

func renderSummary(w io.Writer, s *commission.Summary) {
	money := message.NewPrinter(language.English)

	fmt.Fprintf(w, "Total commission: %s across %d properties (%d listed, %d sold)\n",
		money.Sprintf("$%.2f", s.TotalCommission), s.TotalProperties, s.TotalListed, s.TotalSold)

	if s.TopAgency != nil {
		fmt.Fprintf(w, "Top agency: %s (%s)\n", s.TopAgency.Name, money.Sprintf("$%.2f", s.TopAgency.Commission))
	}
	if s.TopAgent != nil {
		fmt.Fprintf(w, "Top agent:  %s (%s)\n", s.TopAgent.Name, money.Sprintf("$%.2f", s.TopAgent.Commission))
	}
	if s.TopStreet != nil {
		fmt.Fprintf(w, "Top street: %s, %s (%d listed, %s)\n",
			s.TopStreet.Street, s.TopStreet.Suburb, s.TopStreet.Listed, money.Sprintf("$%.2f", s.TopStreet.Commission))
	}

	if len(s.TopAgencies) > 0 {
		fmt.Fprintln(w, "\nAgencies:")
		for _, a := range s.TopAgencies {
			fmt.Fprintf(w, "  %-32s %14s  %3d listed %3d sold\n",
				a.Name, money.Sprintf("$%.2f", a.Commission), a.Listed, a.Sold)
		}
	}
	if len(s.TopAgents) > 0 {
		fmt.Fprintln(w, "\nAgents:")
		for _, a := range s.TopAgents {
			fmt.Fprintf(w, "  %-32s %14s  %3d listed %3d sold\n",
				a.Name, money.Sprintf("$%.2f", a.Commission), a.Listed, a.Sold)
		}
	}
}

func init() {
	commissionCmd.Flags().StringVar(&commissionAgency, "agency", "", "limit to one agency (raw name)")
	commissionCmd.Flags().StringVar(&commissionSuburb, "suburb", "", "limit to one suburb (raw name)")
	commissionCmd.Flags().BoolVar(&commissionJSON, "json", false, "emit JSON instead of text")
	rootCmd.AddCommand(commissionCmd)
}
