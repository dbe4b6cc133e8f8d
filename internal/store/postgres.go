package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/prospectpro/leadengine/internal/budget"
	"github.com/prospectpro/leadengine/internal/db"
	"github.com/prospectpro/leadengine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_cache_entry": `SELECT cache_key, request_type, request_params, response_data, confidence, cost, created_at, expires_at, hit_count, last_accessed_at, is_active FROM api_cache WHERE cache_key = $1`,
	"touch_cache_entry": `UPDATE api_cache SET hit_count = hit_count + 1, last_accessed_at = $1 WHERE cache_key = $2`,
	"check_fingerprint_owner": `SELECT COUNT(*) FROM served_fingerprints WHERE fingerprint = $1 AND owner_id = $2`,
	"check_fingerprint_global": `SELECT COUNT(*) FROM served_fingerprints WHERE fingerprint = $1`,
	"insert_usage_event": `INSERT INTO usage_events (request_id, campaign_id, source_name, endpoint, success, response_time_ms, estimated_cost, actual_cost, cache_hit, results_returned, error_message, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	config     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id          TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	data        JSONB NOT NULL,
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_cache (
	cache_key        TEXT PRIMARY KEY,
	request_type     TEXT NOT NULL,
	request_params   JSONB NOT NULL,
	response_data    BYTEA NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost             NUMERIC(12,6) NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at       TIMESTAMPTZ NOT NULL,
	hit_count        INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_active        BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS served_fingerprints (
	fingerprint   TEXT NOT NULL,
	owner_id      TEXT NOT NULL,
	campaign_id   TEXT NOT NULL,
	lead_id       TEXT NOT NULL,
	business_name TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (fingerprint, owner_id)
);

CREATE TABLE IF NOT EXISTS budget_snapshots (
	campaign_id TEXT PRIMARY KEY,
	committed   NUMERIC(12,6) NOT NULL DEFAULT 0,
	ceiling     NUMERIC(12,6) NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS usage_events (
	request_id       TEXT PRIMARY KEY,
	campaign_id      TEXT NOT NULL,
	source_name      TEXT NOT NULL,
	endpoint         TEXT NOT NULL DEFAULT '',
	success          BOOLEAN NOT NULL DEFAULT true,
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	estimated_cost   NUMERIC(12,6) NOT NULL DEFAULT 0,
	actual_cost      NUMERIC(12,6) NOT NULL DEFAULT 0,
	cache_hit        BOOLEAN NOT NULL DEFAULT false,
	results_returned INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_id ON leads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_served_fingerprints_fp ON served_fingerprints(fingerprint);
CREATE INDEX IF NOT EXISTS idx_usage_events_campaign_id ON usage_events(campaign_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, cfg model.CampaignConfig) (*model.Campaign, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal campaign config")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, config, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, cfgJSON, string(model.CampaignStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert campaign")
	}

	return &model.Campaign{
		ID:        id,
		Config:    cfg,
		Status:    model.CampaignStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign status %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: campaign %s", campaignID)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaignSummary(ctx context.Context, campaignID string, status model.CampaignStatus, summary *model.CostSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(status), time.Now().UTC(), campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign summary %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: campaign %s", campaignID)
	}
	return nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, config, status, summary, created_at, updated_at FROM campaigns WHERE id = $1`,
		campaignID,
	)

	var c model.Campaign
	var cfgJSON []byte
	var status string
	var summaryJSON []byte

	if err := row.Scan(&c.ID, &cfgJSON, &status, &summaryJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get campaign %s", campaignID)
	}

	if err := json.Unmarshal(cfgJSON, &c.Config); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal campaign config")
	}
	c.Status = model.CampaignStatus(status)
	if len(summaryJSON) > 0 && string(summaryJSON) != "null" {
		c.Summary = &model.CostSummary{}
		if err := json.Unmarshal(summaryJSON, c.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal campaign summary")
		}
	}
	return &c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT id, config, status, summary, created_at, updated_at FROM campaigns WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += ` AND config->>'owner_id' = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		var c model.Campaign
		var cfgJSON []byte
		var status string
		var summaryJSON []byte
		if err := rows.Scan(&c.ID, &cfgJSON, &status, &summaryJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		if err := json.Unmarshal(cfgJSON, &c.Config); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal campaign config")
		}
		c.Status = model.CampaignStatus(status)
		if len(summaryJSON) > 0 && string(summaryJSON) != "null" {
			c.Summary = &model.CostSummary{}
			if err := json.Unmarshal(summaryJSON, c.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal campaign summary")
			}
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) SaveLeads(ctx context.Context, leads []model.LeadResult) error {
	if len(leads) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(leads))
	for _, lead := range leads {
		data, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal lead")
		}
		rows = append(rows, []any{lead.ID, lead.CampaignID, data, lead.Score, lead.CreatedAt.UTC()})
	}

	_, err := db.CopyFrom(ctx, s.pool, "leads",
		[]string{"id", "campaign_id", "data", "score", "created_at"}, rows)
	return eris.Wrap(err, "postgres: save leads")
}

func (s *PostgresStore) ListLeads(ctx context.Context, campaignID string) ([]model.LeadResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM leads WHERE campaign_id = $1 ORDER BY score DESC, created_at`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.LeadResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		var lead model.LeadResult
		if err := json.Unmarshal(data, &lead); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal lead")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) GetEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT cache_key, request_type, request_params, response_data, confidence, cost, created_at, expires_at, hit_count, last_accessed_at, is_active FROM api_cache WHERE cache_key = $1`,
		key,
	)

	var e model.CacheEntry
	var params []byte
	var cost decimal.Decimal

	err := row.Scan(&e.CacheKey, &e.RequestType, &params, &e.ResponseData, &e.Confidence, &cost,
		&e.CreatedAt, &e.ExpiresAt, &e.HitCount, &e.LastAccessedAt, &e.IsActive)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}

	if err := json.Unmarshal(params, &e.RequestParams); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cache params")
	}
	e.Cost = cost
	return &e, nil
}

func (s *PostgresStore) PutEntry(ctx context.Context, entry model.CacheEntry) error {
	params, err := json.Marshal(entry.RequestParams)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO api_cache (cache_key, request_type, request_params, response_data, confidence, cost, created_at, expires_at, hit_count, last_accessed_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (cache_key) DO UPDATE SET
		   request_type = EXCLUDED.request_type,
		   request_params = EXCLUDED.request_params,
		   response_data = EXCLUDED.response_data,
		   confidence = EXCLUDED.confidence,
		   cost = EXCLUDED.cost,
		   created_at = EXCLUDED.created_at,
		   expires_at = EXCLUDED.expires_at,
		   hit_count = EXCLUDED.hit_count,
		   last_accessed_at = EXCLUDED.last_accessed_at,
		   is_active = EXCLUDED.is_active`,
		entry.CacheKey, entry.RequestType, params, entry.ResponseData, entry.Confidence,
		entry.Cost, entry.CreatedAt.UTC(), entry.ExpiresAt.UTC(), entry.HitCount,
		entry.LastAccessedAt.UTC(), entry.IsActive,
	)
	return eris.Wrap(err, "postgres: put cache entry")
}

func (s *PostgresStore) TouchEntry(ctx context.Context, key string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_cache SET hit_count = hit_count + 1, last_accessed_at = $1 WHERE cache_key = $2`,
		at.UTC(), key,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: touch cache entry")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: cache entry %s", key)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM api_cache WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache entries")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CacheStats(ctx context.Context) (*CacheStats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN is_active AND expires_at > now() THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(hit_count), 0),
		        COALESCE(SUM(hit_count * cost), 0)
		 FROM api_cache`,
	)

	var stats CacheStats
	var savings decimal.Decimal
	if err := row.Scan(&stats.Entries, &stats.ActiveEntries, &stats.TotalHits, &savings); err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	stats.EstimatedSavings = savings
	return &stats, nil
}

func (s *PostgresStore) FingerprintServed(ctx context.Context, fp, ownerID string, scope model.DedupScope) (bool, error) {
	var row pgx.Row
	if scope == model.DedupScopeGlobal {
		row = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM served_fingerprints WHERE fingerprint = $1`, fp)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM served_fingerprints WHERE fingerprint = $1 AND owner_id = $2`, fp, ownerID)
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return false, eris.Wrap(err, "postgres: check fingerprint")
	}
	return n > 0, nil
}

func (s *PostgresStore) SaveFingerprints(ctx context.Context, recs []model.FingerprintRecord) error {
	for _, rec := range recs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO served_fingerprints (fingerprint, owner_id, campaign_id, lead_id, business_name, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (fingerprint, owner_id) DO NOTHING`,
			rec.Fingerprint, rec.OwnerID, rec.CampaignID, rec.LeadID, rec.BusinessName, rec.CreatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert fingerprint %s", rec.Fingerprint)
		}
	}
	return nil
}

func (s *PostgresStore) SaveLedgerSnapshot(ctx context.Context, snap budget.Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budget_snapshots (campaign_id, committed, ceiling, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (campaign_id) DO UPDATE SET
		   committed = EXCLUDED.committed,
		   ceiling = EXCLUDED.ceiling,
		   updated_at = EXCLUDED.updated_at`,
		snap.CampaignID, snap.Committed, snap.Ceiling, snap.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save ledger snapshot")
}

func (s *PostgresStore) GetLedgerSnapshot(ctx context.Context, campaignID string) (*budget.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT campaign_id, committed, ceiling, updated_at FROM budget_snapshots WHERE campaign_id = $1`,
		campaignID,
	)

	var snap budget.Snapshot
	if err := row.Scan(&snap.CampaignID, &snap.Committed, &snap.Ceiling, &snap.UpdatedAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get ledger snapshot")
	}
	return &snap, nil
}

func (s *PostgresStore) SaveUsageEvent(ctx context.Context, ev model.UsageEvent) error {
	var errMsg *string
	if ev.ErrorMessage != "" {
		errMsg = &ev.ErrorMessage
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_events (request_id, campaign_id, source_name, endpoint, success, response_time_ms, estimated_cost, actual_cost, cache_hit, results_returned, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.RequestID, ev.CampaignID, ev.SourceName, ev.Endpoint, ev.Success, ev.ResponseTimeMS,
		ev.EstimatedCost, ev.ActualCost, ev.CacheHit, ev.ResultsReturned, errMsg, ev.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save usage event")
}

func (s *PostgresStore) ListUsageEvents(ctx context.Context, campaignID string) ([]model.UsageEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT request_id, campaign_id, source_name, endpoint, success, response_time_ms, estimated_cost, actual_cost, cache_hit, results_returned, error_message, created_at
		 FROM usage_events WHERE campaign_id = $1 ORDER BY created_at`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list usage events")
	}
	defer rows.Close()

	var events []model.UsageEvent
	for rows.Next() {
		var ev model.UsageEvent
		var errMsg sql.NullString
		if err := rows.Scan(&ev.RequestID, &ev.CampaignID, &ev.SourceName, &ev.Endpoint, &ev.Success,
			&ev.ResponseTimeMS, &ev.EstimatedCost, &ev.ActualCost, &ev.CacheHit, &ev.ResultsReturned,
			&errMsg, &ev.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan usage event")
		}
		ev.ErrorMessage = errMsg.String
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list usage events iterate")
}
