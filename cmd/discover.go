package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prospectpro/leadengine/internal/model"
)

var (
	discoverTerms    string
	discoverLocation string
	discoverTarget   int
	discoverBudget   string
	discoverMinScore float64
	discoverOwner    string
	discoverScope    string
	discoverEmails   bool
	discoverVerify   bool
	discoverRegistry bool
	discoverJSON     bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a discovery campaign",
	Long:  "Discovers businesses matching the search terms and location, enriches them under the budget ceiling, and prints the qualified leads with a cost report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		budgetLimit, err := decimal.NewFromString(discoverBudget)
		if err != nil {
			return eris.Wrapf(err, "invalid --budget %q", discoverBudget)
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		campaignCfg := model.CampaignConfig{
			SearchTerms:        discoverTerms,
			Location:           discoverLocation,
			TargetCount:        discoverTarget,
			BudgetLimit:        budgetLimit,
			MinConfidenceScore: discoverMinScore,
			OwnerID:            discoverOwner,
			DedupScope:         model.DedupScope(discoverScope),
			Enrichment: model.EnrichmentToggles{
				EmailDiscovery:    discoverEmails,
				EmailVerification: discoverVerify,
				RegistryLookup:    discoverRegistry,
			},
		}
		if err := campaignCfg.Validate(); err != nil {
			return err
		}

		campaign, err := env.Store.CreateCampaign(ctx, campaignCfg)
		if err != nil {
			return eris.Wrap(err, "create campaign")
		}

		zap.L().Info("campaign started",
			zap.String("campaign_id", campaign.ID),
			zap.String("terms", discoverTerms),
			zap.String("location", discoverLocation),
			zap.String("budget", budgetLimit.String()),
		)

		result, err := env.Engine.Run(ctx, campaign)
		if err != nil {
			return eris.Wrap(err, "run campaign")
		}

		zap.L().Info("campaign finished",
			zap.String("campaign_id", result.CampaignID),
			zap.String("status", string(result.Status)),
			zap.Int("leads", len(result.Leads)),
			zap.String("spend", result.Summary.TotalSpend.String()),
		)

		if discoverJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printLeads(result.Leads)
		printSummary(result.Summary)
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverTerms, "terms", "", "search terms, e.g. \"coffee shop\" (required)")
	discoverCmd.Flags().StringVar(&discoverLocation, "location", "", "location, e.g. \"Seattle, WA\" (required)")
	discoverCmd.Flags().IntVar(&discoverTarget, "target", 10, "number of qualified leads to deliver")
	discoverCmd.Flags().StringVar(&discoverBudget, "budget", "1.00", "budget ceiling in USD")
	discoverCmd.Flags().Float64Var(&discoverMinScore, "min-score", 70, "minimum confidence score for delivery")
	discoverCmd.Flags().StringVar(&discoverOwner, "owner", "default", "owner id for cross-campaign dedup")
	discoverCmd.Flags().StringVar(&discoverScope, "dedup-scope", "", "dedup scope: owner or global (default owner)")
	discoverCmd.Flags().BoolVar(&discoverEmails, "emails", false, "enable email discovery enrichment")
	discoverCmd.Flags().BoolVar(&discoverVerify, "verify-emails", false, "enable email verification enrichment")
	discoverCmd.Flags().BoolVar(&discoverRegistry, "registry", false, "enable state registry validation")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print the full result as JSON")

	_ = discoverCmd.MarkFlagRequired("terms")
	_ = discoverCmd.MarkFlagRequired("location")

	rootCmd.AddCommand(discoverCmd)
}
