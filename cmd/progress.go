package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
	"github.com/sells-group/prospect-cli/internal/reconcile"
)

var (
	progressAgent  string
	progressSuburb string
	progressJSON   bool
)

// progressStore is the slice of the store the progress command reads.
type progressStore interface {
	FetchPlans(ctx context.Context, agentRef string) ([]model.Plan, error)
	FetchActivities(ctx context.Context, agentRef, suburb string) ([]model.Activity, error)
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Reconcile an agent's plans against logged activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		suburbs := initSuburbs()
		progress, err := computeProgress(cmd, st, suburbs)
		if err != nil {
			return err
		}

		if progressJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(progress)
		}
		renderProgress(cmd.OutOrStdout(), progress)
		return nil
	},
}

func computeProgress(cmd *cobra.Command, st progressStore, suburbs normalize.SuburbTable) (*reconcile.Progress, error) {
	ctx := cmd.Context()
	plans, err := st.FetchPlans(ctx, progressAgent)
	if err != nil {
		return nil, err
	}
	activities, err := st.FetchActivities(ctx, progressAgent, "")
	if err != nil {
		return nil, err
	}

	agg := reconcile.New(suburbs)
	if progressSuburb == "" {
		return agg.Overall(plans, activities), nil
	}

	want := suburbs.Suburb(progressSuburb)
	var matched []model.Plan
	for _, p := range plans {
		if suburbs.Suburb(p.Suburb) == want {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil, eris.Errorf("no plan found for agent %q in suburb %q", progressAgent, progressSuburb)
	}
	if len(matched) > 1 {
		zap.L().Warn("multiple plans match suburb, using most recent",
			zap.String("suburb", want), zap.Int("plans", len(matched)))
	}
	return agg.Suburb(matched[0], activities), nil
}

func renderProgress(w io.Writer, p *reconcile.Progress) {
	fmt.Fprintf(w, "Door knocks:             %d/%d (%d%%)\n", p.DoorKnocks.Completed, p.DoorKnocks.Target, p.DoorKnocks.Percent())
	fmt.Fprintf(w, "Phone calls:             %d/%d (%d%%)\n", p.PhoneCalls.Completed, p.PhoneCalls.Target, p.PhoneCalls.Percent())
	fmt.Fprintf(w, "Connects:                %d/%d (%d%%)\n", p.Connects.Completed, p.Connects.Target, p.Connects.Percent())
	fmt.Fprintf(w, "Desktop appraisals:      %d/%d (%d%%)\n", p.DesktopAppraisals.Completed, p.DesktopAppraisals.Target, p.DesktopAppraisals.Percent())
	fmt.Fprintf(w, "Face-to-face appraisals: %d/%d (%d%%)\n", p.FaceToFaceAppraisals.Completed, p.FaceToFaceAppraisals.Target, p.FaceToFaceAppraisals.Percent())

	if len(p.Streets) == 0 {
		return
	}
	fmt.Fprintln(w, "\nStreets:")
	for _, s := range p.Streets {
		fmt.Fprintf(w, "  %-30s %-16s %-10s %d/%d (%d%%)\n",
			s.Name, s.Suburb, s.Kind, s.Completed, s.Target, s.Percent())
	}
}

func init() {
	progressCmd.Flags().StringVar(&progressAgent, "agent", "", "agent reference (required)")
	progressCmd.Flags().StringVar(&progressSuburb, "suburb", "", "limit to one suburb's plan")
	progressCmd.Flags().BoolVar(&progressJSON, "json", false, "emit JSON instead of text")
	progressCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(progressCmd)
}
