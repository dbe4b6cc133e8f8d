package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/prospectpro/leadengine/internal/model"
	"github.com/prospectpro/leadengine/internal/store"
	"github.com/prospectpro/leadengine/internal/telemetry"
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Inspect campaign history",
	Long:  "Commands for listing campaigns and viewing their leads, cost reports, and source metrics.",
}

// -- campaigns list --

var campaignsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		owner, _ := cmd.Flags().GetString("owner")
		limit, _ := cmd.Flags().GetInt("limit")

		campaigns, err := st.ListCampaigns(ctx, store.CampaignFilter{
			Status:  model.CampaignStatus(status),
			OwnerID: owner,
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "campaigns list")
		}

		if len(campaigns) == 0 {
			fmt.Fprintln(os.Stderr, "No campaigns found.")
			return nil
		}

		formatCampaignsList(os.Stdout, campaigns)
		return nil
	},
}

// -- campaigns show --

var campaignsShowCmd = &cobra.Command{
	Use:   "show <campaign-id>",
	Short: "Show a campaign with its leads and source metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		campaign, err := st.GetCampaign(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaigns show")
		}

		leads, err := st.ListLeads(ctx, campaign.ID)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		metrics, err := telemetry.NewCollector(st).Collect(ctx, campaign.ID)
		if err != nil {
			return eris.Wrap(err, "collect metrics")
		}

		out := struct {
			Campaign *model.Campaign            `json:"campaign"`
			Leads    []model.LeadResult         `json:"leads"`
			Metrics  *telemetry.CampaignMetrics `json:"metrics"`
		}{campaign, leads, metrics}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	campaignsListCmd.Flags().String("status", "", "filter by status (completed, budget_exhausted, failed, ...)")
	campaignsListCmd.Flags().String("owner", "", "filter by owner id")
	campaignsListCmd.Flags().Int("limit", 50, "max number of campaigns to display")

	campaignsCmd.AddCommand(campaignsListCmd)
	campaignsCmd.AddCommand(campaignsShowCmd)
	rootCmd.AddCommand(campaignsCmd)
}
