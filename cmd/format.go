package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prospectpro/leadengine/internal/model"
)

// formatCampaignsList writes a tabular list of campaigns to w.
func formatCampaignsList(out io.Writer, campaigns []model.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTERMS\tLOCATION\tSTATUS\tLEADS\tSPEND\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t--------\t------\t-----\t-----\t-------")

	for _, c := range campaigns {
		leads, spend := "-", "-"
		if c.Summary != nil {
			leads = fmt.Sprintf("%d", c.Summary.LeadsQualified)
			spend = "$" + c.Summary.TotalSpend.StringFixed(4)
		}
		terms := c.Config.SearchTerms
		if len(terms) > 24 {
			terms = terms[:21] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(c.ID),
			terms,
			c.Config.Location,
			c.Status,
			leads,
			spend,
			c.CreatedAt.Format(time.DateTime),
		)
	}
	_ = w.Flush()
}

// printLeads writes a tabular list of qualified leads to stdout.
func printLeads(leads []model.LeadResult) {
	if len(leads) == 0 {
		fmt.Fprintln(os.Stderr, "No qualified leads.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tADDRESS\tPHONE\tEMAIL\tSCORE\tGRADE\tSOURCES\tCOST")
	_, _ = fmt.Fprintln(w, "----\t-------\t-----\t-----\t-----\t-----\t-------\t----")
	for _, l := range leads {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%s\t%s\t$%s\n",
			l.Name,
			l.Address,
			l.Phone,
			l.Email,
			l.Score,
			l.Grade,
			strings.Join(l.Sources, ","),
			l.CostToAcquire.StringFixed(4),
		)
	}
	_ = w.Flush()
}

// printSummary writes the cost report to stdout.
func printSummary(s model.CostSummary) {
	fmt.Printf("\nDiscovered %d, qualified %d. Total spend $%s (cache: %d hits, %d misses, ~$%s saved)\n",
		s.LeadsDiscovered,
		s.LeadsQualified,
		s.TotalSpend.StringFixed(4),
		s.CachePerformance.Hits,
		s.CachePerformance.Misses,
		s.CachePerformance.EstimatedSavings.StringFixed(4),
	)
	for _, sc := range s.SpendPerSource {
		fmt.Printf("  %-16s %3d calls  $%s\n", sc.Source, sc.Calls, sc.Cost.StringFixed(4))
	}
}

// truncateID shortens a UUID for table display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
