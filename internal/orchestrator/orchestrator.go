// Package orchestrator runs discovery campaigns: fan-out over discovery
// sources, fingerprint merge, budget-gated enrichment, and final scoring.
package orchestrator

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prospectpro/leadengine/internal/budget"
	"github.com/prospectpro/leadengine/internal/cache"
	"github.com/prospectpro/leadengine/internal/dedup"
	"github.com/prospectpro/leadengine/internal/model"
	"github.com/prospectpro/leadengine/internal/ratelimit"
	"github.com/prospectpro/leadengine/internal/score"
	"github.com/prospectpro/leadengine/internal/source"
	"github.com/prospectpro/leadengine/internal/telemetry"
)

// discoveryOverfetch asks sources for more candidates than the target so
// pre-validation and qualification have room to drop some.
const discoveryOverfetch = 3

// Persister is the slice of the store the engine writes through.
type Persister interface {
	UpdateCampaignStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error
	UpdateCampaignSummary(ctx context.Context, campaignID string, status model.CampaignStatus, summary *model.CostSummary) error
	SaveLeads(ctx context.Context, leads []model.LeadResult) error
	SaveFingerprints(ctx context.Context, recs []model.FingerprintRecord) error
	FingerprintServed(ctx context.Context, fp, ownerID string, scope model.DedupScope) (bool, error)
	GetLedgerSnapshot(ctx context.Context, campaignID string) (*budget.Snapshot, error)
}

// Config holds engine tunables.
type Config struct {
	// Reliability orders sources from most to least trusted for merges.
	Reliability []string
	// MaxConcurrentSources bounds discovery-stage fan-out.
	MaxConcurrentSources int
	// MaxConcurrentCandidates bounds enrichment-stage fan-out.
	MaxConcurrentCandidates int
	// RateWaitMax caps how long a call waits on its rate limiter.
	RateWaitMax time.Duration
	// PreValidationMinScore gates candidates before paid enrichment.
	PreValidationMinScore float64
}

// Engine executes campaign runs. All collaborators are passed in explicitly;
// the engine holds no hidden global state.
type Engine struct {
	adapters *source.Registry
	limits   *ratelimit.Limiters
	cache    *cache.Cache
	ledger   *budget.Ledger
	scorer   *score.Scorer
	checker  score.ReachabilityChecker
	recorder *telemetry.Recorder
	persist  Persister
	cfg      Config
}

// New creates a campaign engine.
func New(
	adapters *source.Registry,
	limits *ratelimit.Limiters,
	responseCache *cache.Cache,
	ledger *budget.Ledger,
	scorer *score.Scorer,
	checker score.ReachabilityChecker,
	recorder *telemetry.Recorder,
	persist Persister,
	cfg Config,
) *Engine {
	if cfg.MaxConcurrentSources <= 0 {
		cfg.MaxConcurrentSources = 4
	}
	if cfg.MaxConcurrentCandidates <= 0 {
		cfg.MaxConcurrentCandidates = 5
	}
	if cfg.RateWaitMax <= 0 {
		cfg.RateWaitMax = 5 * time.Second
	}
	return &Engine{
		adapters: adapters,
		limits:   limits,
		cache:    responseCache,
		ledger:   ledger,
		scorer:   scorer,
		checker:  checker,
		recorder: recorder,
		persist:  persist,
		cfg:      cfg,
	}
}

// Result is the outcome of one campaign run.
type Result struct {
	CampaignID string               `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
	Leads      []model.LeadResult   `json:"leads"`
	Summary    model.CostSummary    `json:"cost_summary"`
}

// runState carries per-run accumulators across stages.
type runState struct {
	campaign *model.Campaign

	mu                sync.Mutex
	results           []model.SourceResult
	share             map[string]decimal.Decimal
	perSource         map[string]*model.SourceCost
	cacheHits         int
	cacheMisses       int
	saved             decimal.Decimal
	discoveryDenied   int
	discoveryAttempts int
}

// discoveryExhausted reports whether the budget blocked the entire discovery
// stage: at least one debit was refused and no source got a call through
// (paid, free, or cached), so nothing further can be attempted.
func (rs *runState) discoveryExhausted() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.discoveryDenied > 0 && rs.discoveryAttempts == 0
}

func (rs *runState) trackCall(sourceName string, cost decimal.Decimal, cacheHit bool, estimate decimal.Decimal) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	sc := rs.perSource[sourceName]
	if sc == nil {
		sc = &model.SourceCost{Source: sourceName, Cost: decimal.Zero}
		rs.perSource[sourceName] = sc
	}
	sc.Calls++
	sc.Cost = sc.Cost.Add(cost)

	if cacheHit {
		rs.cacheHits++
		rs.saved = rs.saved.Add(estimate)
	} else {
		rs.cacheMisses++
	}
}

// Run executes the full campaign state machine. Provider failures degrade to
// partial results; only invalid configuration or persistence failure aborts.
func (e *Engine) Run(ctx context.Context, campaign *model.Campaign) (*Result, error) {
	if err := campaign.Config.Validate(); err != nil {
		return nil, err
	}

	rs := &runState{
		campaign:  campaign,
		share:     make(map[string]decimal.Decimal),
		perSource: make(map[string]*model.SourceCost),
		saved:     decimal.Zero,
	}

	e.ledger.Open(campaign.ID, campaign.Config.BudgetLimit)
	defer e.ledger.Close(campaign.ID)

	logger := zap.L().With(zap.String("campaign_id", campaign.ID))

	// A prior attempt may have left committed spend behind; resume from the
	// stored snapshot so the ceiling holds across retries.
	if snap, err := e.persist.GetLedgerSnapshot(ctx, campaign.ID); err != nil {
		logger.Warn("ledger snapshot lookup failed", zap.Error(err))
	} else if snap != nil && snap.Committed.IsPositive() {
		e.ledger.Resume(ctx, campaign.ID, snap.Committed)
		logger.Info("resumed ledger from snapshot", zap.String("committed", snap.Committed.String()))
	}

	// Discovering
	if err := e.setStatus(ctx, campaign.ID, model.CampaignStatusDiscovering); err != nil {
		return nil, err
	}
	if err := e.discover(ctx, rs); err != nil {
		e.fail(ctx, campaign.ID)
		return nil, err
	}

	leads := mergeResults(rs.results, newReliabilityRank(e.cfg.Reliability), rs.share)
	discovered := len(leads)
	logger.Info("discovery finished",
		zap.Int("raw_results", len(rs.results)),
		zap.Int("merged", discovered),
		zap.Int("denied_sources", rs.discoveryDenied))

	// Exhaustion is a discovery-stage verdict only: every source that needed
	// a debit was refused and none got through. A refused enrichment debit
	// later just skips that enrichment, so the run still completes.
	if rs.discoveryExhausted() {
		return e.finish(ctx, rs, nil, discovered, model.CampaignStatusBudgetExhausted)
	}

	leads, err := e.filterServed(ctx, rs, leads)
	if err != nil {
		e.fail(ctx, campaign.ID)
		return nil, err
	}

	// PreValidating
	if err := e.setStatus(ctx, campaign.ID, model.CampaignStatusPreValidating); err != nil {
		return nil, err
	}
	leads = e.preValidate(leads)

	// Enriching
	if err := e.setStatus(ctx, campaign.ID, model.CampaignStatusEnriching); err != nil {
		return nil, err
	}
	if err := e.enrich(ctx, rs, leads); err != nil {
		e.fail(ctx, campaign.ID)
		return nil, err
	}

	// FinalValidating
	if err := e.setStatus(ctx, campaign.ID, model.CampaignStatusFinalValidating); err != nil {
		return nil, err
	}
	qualified, err := e.finalValidate(ctx, rs, leads)
	if err != nil {
		e.fail(ctx, campaign.ID)
		return nil, err
	}

	return e.finish(ctx, rs, qualified, discovered, model.CampaignStatusCompleted)
}

func (e *Engine) setStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error {
	if err := e.persist.UpdateCampaignStatus(ctx, campaignID, status); err != nil {
		return eris.Wrapf(err, "orchestrator: set status %s", status)
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, campaignID string) {
	// Best-effort; the caller already carries the real error.
	if err := e.persist.UpdateCampaignStatus(context.WithoutCancel(ctx), campaignID, model.CampaignStatusFailed); err != nil {
		zap.L().Warn("failed to mark campaign failed", zap.String("campaign_id", campaignID), zap.Error(err))
	}
}

// discover fans out over every discovery adapter. Individual source failures
// are logged and skipped; a run continues with whatever sources delivered.
func (e *Engine) discover(ctx context.Context, rs *runState) error {
	adapters := e.discoveryAdapters()
	req := source.Request{
		Query:    rs.campaign.Config.SearchTerms,
		Location: rs.campaign.Config.Location,
		Limit:    rs.campaign.Config.TargetCount * discoveryOverfetch,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentSources)

	for _, ad := range adapters {
		ad := ad
		g.Go(func() error {
			resp, outcome := e.callAdapter(gctx, rs, ad, req)
			switch {
			case outcome.denied:
				rs.mu.Lock()
				rs.discoveryDenied++
				rs.mu.Unlock()
				return nil
			case outcome.err != nil:
				zap.L().Warn("discovery source failed",
					zap.String("campaign_id", rs.campaign.ID),
					zap.String("source", ad.Name()),
					zap.Error(outcome.err))
				rs.mu.Lock()
				rs.discoveryAttempts++
				rs.mu.Unlock()
				return nil
			}

			rs.mu.Lock()
			rs.discoveryAttempts++
			rs.results = append(rs.results, resp.Results...)
			if len(resp.Results) > 0 && outcome.cost.IsPositive() {
				rs.share[ad.Name()] = outcome.cost.Div(decimal.NewFromInt(int64(len(resp.Results))))
			}
			rs.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "orchestrator: discovery")
	}
	return ctx.Err()
}

func (e *Engine) discoveryAdapters() []source.Adapter {
	adapters := e.adapters.OfKind(source.KindDiscovery)
	rank := newReliabilityRank(e.cfg.Reliability)
	sort.SliceStable(adapters, func(i, j int) bool {
		ri, rj := rank.of(adapters[i].Name()), rank.of(adapters[j].Name())
		if ri != rj {
			return ri < rj
		}
		return adapters[i].Name() < adapters[j].Name()
	})
	return adapters
}

// callOutcome describes how one adapter call resolved.
type callOutcome struct {
	cacheHit bool
	denied   bool
	cost     decimal.Decimal
	err      error
}

// callAdapter runs the per-call pipeline: cache lookup, rate limit, budget
// pre-authorization, provider call, reconcile-or-refund, cache fill, usage
// event. Budget refusal is an outcome, not an error.
func (e *Engine) callAdapter(ctx context.Context, rs *runState, ad source.Adapter, req source.Request) (*source.Response, callOutcome) {
	params := source.CacheParams(ad.Kind(), req)
	key := cache.Signature(ad.Name(), params)
	estimate := ad.CostPerCall()
	started := time.Now()

	if entry, ok := e.cache.Get(ctx, key); ok {
		var resp source.Response
		if err := json.Unmarshal(entry.ResponseData, &resp); err == nil {
			rs.trackCall(ad.Name(), decimal.Zero, true, estimate)
			e.recorder.Record(ctx, telemetry.Call{
				CampaignID:      rs.campaign.ID,
				SourceName:      ad.Name(),
				Endpoint:        string(ad.Kind()),
				Started:         started,
				EstimatedCost:   estimate,
				ActualCost:      decimal.Zero,
				CacheHit:        true,
				ResultsReturned: resp.ResultCount(),
			})
			return &resp, callOutcome{cacheHit: true, cost: decimal.Zero}
		}
		zap.L().Warn("undecodable cache entry treated as miss", zap.String("source", ad.Name()))
	}

	// Non-blocking token grab first; a drained bucket falls back to a
	// bounded wait.
	if !e.limits.Allow(ad.Name()) {
		if err := e.limits.Wait(ctx, ad.Name(), e.cfg.RateWaitMax); err != nil {
			return nil, callOutcome{err: eris.Wrapf(err, "orchestrator: rate limit %s", ad.Name())}
		}
	}

	if estimate.IsPositive() && !e.ledger.TryDebit(ctx, rs.campaign.ID, estimate) {
		return nil, callOutcome{denied: true}
	}

	resp, err := ad.Call(ctx, req)
	if err != nil {
		if estimate.IsPositive() {
			e.ledger.Refund(ctx, rs.campaign.ID, estimate)
		}
		e.recorder.Record(ctx, telemetry.Call{
			CampaignID:    rs.campaign.ID,
			SourceName:    ad.Name(),
			Endpoint:      string(ad.Kind()),
			Started:       started,
			Err:           err,
			EstimatedCost: estimate,
			ActualCost:    decimal.Zero,
		})
		return nil, callOutcome{err: err}
	}

	// Providers here bill flat per call, so actual equals the estimate.
	if estimate.IsPositive() {
		e.ledger.Reconcile(ctx, rs.campaign.ID, estimate, estimate)
	}

	if payload, merr := json.Marshal(resp); merr == nil {
		e.cache.Put(ctx, key, ad.Name(), params, payload, ad.CacheTTL(), estimate, 0)
	}

	rs.trackCall(ad.Name(), estimate, false, estimate)
	e.recorder.Record(ctx, telemetry.Call{
		CampaignID:      rs.campaign.ID,
		SourceName:      ad.Name(),
		Endpoint:        string(ad.Kind()),
		Started:         started,
		EstimatedCost:   estimate,
		ActualCost:      estimate,
		ResultsReturned: resp.ResultCount(),
	})
	return resp, callOutcome{cost: estimate}
}

// filterServed drops leads already delivered to this owner (or anyone, under
// global scope) in earlier campaigns.
func (e *Engine) filterServed(ctx context.Context, rs *runState, leads []*model.CanonicalLead) ([]*model.CanonicalLead, error) {
	scope := rs.campaign.Config.DedupScope
	if scope == "" {
		scope = model.DedupScopeOwner
	}
	filter := dedup.NewFilter(e.persist, rs.campaign.Config.OwnerID, scope)

	kept := leads[:0]
	for _, lead := range leads {
		seen, err := filter.Seen(ctx, lead.Fingerprint)
		if err != nil {
			return nil, err
		}
		if !seen {
			kept = append(kept, lead)
		}
	}
	return kept, nil
}

func (e *Engine) preValidate(leads []*model.CanonicalLead) []*model.CanonicalLead {
	kept := leads[:0]
	for _, lead := range leads {
		if got, ok := e.scorer.PreValidate(lead, e.cfg.PreValidationMinScore); ok {
			kept = append(kept, lead)
		} else {
			zap.L().Debug("candidate dropped before enrichment",
				zap.String("name", lead.Name),
				zap.Float64("pre_score", got))
		}
	}
	return kept
}

// enrich runs optional paid lookups per candidate. Candidates are processed
// concurrently, but each candidate's own calls are sequential: email
// discovery must finish before verification has an address to check. A
// refused debit skips that one enrichment, never the candidate.
func (e *Engine) enrich(ctx context.Context, rs *runState, leads []*model.CanonicalLead) error {
	toggles := rs.campaign.Config.Enrichment
	if !toggles.EmailDiscovery && !toggles.EmailVerification && !toggles.RegistryLookup {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentCandidates)

	for _, lead := range leads {
		lead := lead
		g.Go(func() error {
			e.enrichOne(gctx, rs, lead)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "orchestrator: enrichment")
	}
	return nil
}

// affordable is the planning check for optional enrichments: when the
// source's bucket is drained and the remaining budget cannot fund the call,
// waiting for a token only delays a refused debit, so the enrichment is
// skipped up front.
func (e *Engine) affordable(campaignID string, ad source.Adapter) bool {
	estimate := ad.CostPerCall()
	if !estimate.IsPositive() || !e.limits.WouldBlock(ad.Name()) {
		return true
	}
	remaining, err := e.ledger.Remaining(campaignID)
	if err != nil {
		return true
	}
	return remaining.GreaterThanOrEqual(estimate)
}

func (e *Engine) enrichOne(ctx context.Context, rs *runState, lead *model.CanonicalLead) {
	toggles := rs.campaign.Config.Enrichment

	if toggles.RegistryLookup {
		if ad := e.adapters.Get(source.SourceStateRegistry); ad != nil && e.affordable(rs.campaign.ID, ad) {
			state := stateFromLocation(rs.campaign.Config.Location)
			if state != "" {
				resp, outcome := e.callAdapter(ctx, rs, ad, source.Request{State: state, Business: lead.Name})
				if outcome.err == nil && !outcome.denied && resp.Registry != nil && resp.Registry.Active {
					lead.RegistryVerified = true
					lead.CostToAcquire = lead.CostToAcquire.Add(outcome.cost)
				}
			}
		}
	}

	if toggles.EmailDiscovery && lead.Email == "" {
		if ad := e.adapters.Get(source.SourceHunter); ad != nil && e.affordable(rs.campaign.ID, ad) {
			if domain := domainFromURL(lead.Website); domain != "" {
				resp, outcome := e.callAdapter(ctx, rs, ad, source.Request{Domain: domain})
				if outcome.err == nil && !outcome.denied && len(resp.Emails) > 0 {
					lead.Email = resp.Emails[0].Address
					lead.CostToAcquire = lead.CostToAcquire.Add(outcome.cost)
				}
			}
		}
	}

	if toggles.EmailVerification && lead.Email != "" {
		if ad := e.adapters.Get(source.SourceNeverBounce); ad != nil && e.affordable(rs.campaign.ID, ad) {
			resp, outcome := e.callAdapter(ctx, rs, ad, source.Request{Email: lead.Email})
			if outcome.err == nil && !outcome.denied && resp.Verification != nil {
				lead.EmailVerified = resp.Verification.Deliverable
				lead.CostToAcquire = lead.CostToAcquire.Add(outcome.cost)
			}
		}
	}
}

// finalValidate recomputes confidence over the enriched evidence, filters by
// the campaign threshold, and keeps the best target_count leads.
func (e *Engine) finalValidate(ctx context.Context, rs *runState, leads []*model.CanonicalLead) ([]*model.CanonicalLead, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentCandidates)

	for _, lead := range leads {
		lead := lead
		g.Go(func() error {
			if lead.Website != "" && e.checker != nil {
				lead.WebsiteReachable = e.checker.Reachable(gctx, lead.Website)
			}
			breakdown := e.scorer.Score(lead)
			lead.Breakdown = breakdown
			lead.Score = breakdown.Total
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "orchestrator: final validation")
	}

	var qualified []*model.CanonicalLead
	for _, lead := range leads {
		if lead.Score >= rs.campaign.Config.MinConfidenceScore {
			qualified = append(qualified, lead)
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].Score > qualified[j].Score
	})
	if len(qualified) > rs.campaign.Config.TargetCount {
		qualified = qualified[:rs.campaign.Config.TargetCount]
	}
	return qualified, nil
}

// finish persists leads, fingerprints, and the cost summary, and assembles
// the caller-facing result.
func (e *Engine) finish(ctx context.Context, rs *runState, qualified []*model.CanonicalLead, discovered int, status model.CampaignStatus) (*Result, error) {
	now := time.Now().UTC()
	campaign := rs.campaign

	results := make([]model.LeadResult, 0, len(qualified))
	records := make([]model.FingerprintRecord, 0, len(qualified))
	for _, lead := range qualified {
		id := uuid.NewString()
		results = append(results, model.LeadResult{
			ID:               id,
			CampaignID:       campaign.ID,
			Name:             lead.Name,
			Address:          lead.Address,
			Phone:            lead.Phone,
			Website:          lead.Website,
			Email:            lead.Email,
			Score:            lead.Score,
			Breakdown:        lead.Breakdown,
			Grade:            model.GradeForScore(lead.Score),
			Sources:          lead.Sources,
			CostToAcquire:    lead.CostToAcquire,
			ValidationStatus: model.ValidationStatusValidated,
			CreatedAt:        now,
		})
		records = append(records, model.FingerprintRecord{
			Fingerprint:  lead.Fingerprint,
			BusinessName: lead.Name,
			CampaignID:   campaign.ID,
			LeadID:       id,
			OwnerID:      campaign.Config.OwnerID,
			CreatedAt:    now,
		})
	}

	if err := e.persist.SaveLeads(ctx, results); err != nil {
		e.fail(ctx, campaign.ID)
		return nil, eris.Wrap(err, "orchestrator: save leads")
	}
	if err := e.persist.SaveFingerprints(ctx, records); err != nil {
		e.fail(ctx, campaign.ID)
		return nil, eris.Wrap(err, "orchestrator: save fingerprints")
	}

	summary := e.buildSummary(rs, len(results), discovered)
	if err := e.persist.UpdateCampaignSummary(ctx, campaign.ID, status, &summary); err != nil {
		return nil, eris.Wrap(err, "orchestrator: save summary")
	}

	return &Result{
		CampaignID: campaign.ID,
		Status:     status,
		Leads:      results,
		Summary:    summary,
	}, nil
}

func (e *Engine) buildSummary(rs *runState, qualified, discovered int) model.CostSummary {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	total := decimal.Zero
	perSource := make([]model.SourceCost, 0, len(rs.perSource))
	for _, sc := range rs.perSource {
		perSource = append(perSource, *sc)
		total = total.Add(sc.Cost)
	}
	sort.Slice(perSource, func(i, j int) bool { return perSource[i].Source < perSource[j].Source })

	if committed, err := e.ledger.Committed(rs.campaign.ID); err == nil {
		total = committed
	}

	return model.CostSummary{
		TotalSpend:      total,
		SpendPerSource:  perSource,
		LeadsQualified:  qualified,
		LeadsDiscovered: discovered,
		CachePerformance: model.CachePerformance{
			Hits:             rs.cacheHits,
			Misses:           rs.cacheMisses,
			EstimatedSavings: rs.saved,
		},
	}
}

// stateFromLocation extracts a two-letter state code from locations shaped
// like "Seattle, WA" or "Portland, OR 97201".
func stateFromLocation(location string) string {
	parts := strings.Split(location, ",")
	if len(parts) < 2 {
		return ""
	}
	for _, tok := range strings.Fields(parts[len(parts)-1]) {
		if len(tok) == 2 && tok == strings.ToUpper(tok) && isAlpha(tok) {
			return tok
		}
	}
	return ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func domainFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
