package orchestrator

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prospectpro/leadengine/internal/fingerprint"
	"github.com/prospectpro/leadengine/internal/model"
)

// reliabilityRank maps source names to their position in the configured
// ranking. Unlisted sources rank below every listed one.
type reliabilityRank map[string]int

func newReliabilityRank(reliability []string) reliabilityRank {
	rank := make(reliabilityRank, len(reliability))
	for i, name := range reliability {
		rank[name] = i
	}
	return rank
}

func (r reliabilityRank) of(source string) int {
	if i, ok := r[source]; ok {
		return i
	}
	return len(r)
}

// mergeResults folds raw source results into canonical leads keyed by
// fingerprint. Field conflicts resolve to the most reliable contributing
// source, so the outcome does not depend on arrival order. Results whose
// fingerprint is degenerate are kept as unique candidates rather than merged
// with unrelated leads.
func mergeResults(results []model.SourceResult, rank reliabilityRank, share map[string]decimal.Decimal) []*model.CanonicalLead {
	// Fix a reliability-then-name order up front; folding in a deterministic
	// order makes the merge independent of how sources resolved.
	sorted := make([]model.SourceResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank.of(sorted[i].Source), rank.of(sorted[j].Source)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Source < sorted[j].Source
	})

	byFP := make(map[string]*model.CanonicalLead)
	var order []string

	for _, res := range sorted {
		fp, err := fingerprint.Fingerprint(res.Name, res.Address)
		if err != nil {
			zap.L().Warn("degenerate fingerprint, keeping candidate unmerged",
				zap.String("source", res.Source),
				zap.String("name", res.Name))
			fp = "degenerate:" + res.Source + ":" + res.ProviderID + ":" + res.Name
		}

		lead, ok := byFP[fp]
		if !ok {
			lead = &model.CanonicalLead{
				Fingerprint:   fp,
				CostToAcquire: decimal.Zero,
			}
			byFP[fp] = lead
			order = append(order, fp)
		}
		fold(lead, res, share)
	}

	out := make([]*model.CanonicalLead, 0, len(order))
	for _, fp := range order {
		out = append(out, byFP[fp])
	}
	return out
}

// fold copies fields from a source result into the lead. Callers fold in
// descending reliability order, so a field already set always came from a
// source at least as trusted. Absent fields stay absent; nothing is invented.
func fold(lead *model.CanonicalLead, res model.SourceResult, share map[string]decimal.Decimal) {
	if lead.Name == "" {
		lead.Name = res.Name
	}
	if lead.Address == "" {
		lead.Address = res.Address
	}
	if lead.Phone == "" {
		lead.Phone = res.Phone
	}
	if lead.Website == "" {
		lead.Website = res.Website
	}
	if lead.Latitude == 0 && lead.Longitude == 0 {
		lead.Latitude = res.Latitude
		lead.Longitude = res.Longitude
	}
	if !lead.HasSource(res.Source) {
		lead.Sources = append(lead.Sources, res.Source)
		if cost, ok := share[res.Source]; ok {
			lead.CostToAcquire = lead.CostToAcquire.Add(cost)
		}
	}
}
