package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/prospectpro/leadengine/internal/budget"
	"github.com/prospectpro/leadengine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id         TEXT PRIMARY KEY,
	config     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id          TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	data        TEXT NOT NULL,
	score       REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS api_cache (
	cache_key        TEXT PRIMARY KEY,
	request_type     TEXT NOT NULL,
	request_params   TEXT NOT NULL,
	response_data    BLOB NOT NULL,
	confidence       REAL NOT NULL DEFAULT 0,
	cost             TEXT NOT NULL DEFAULT '0',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at       DATETIME NOT NULL,
	hit_count        INTEGER NOT NULL DEFAULT 0,
	last_accessed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	is_active        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS served_fingerprints (
	fingerprint   TEXT NOT NULL,
	owner_id      TEXT NOT NULL,
	campaign_id   TEXT NOT NULL,
	lead_id       TEXT NOT NULL,
	business_name TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (fingerprint, owner_id)
);

CREATE TABLE IF NOT EXISTS budget_snapshots (
	campaign_id TEXT PRIMARY KEY,
	committed   TEXT NOT NULL DEFAULT '0',
	ceiling     TEXT NOT NULL DEFAULT '0',
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS usage_events (
	request_id       TEXT PRIMARY KEY,
	campaign_id      TEXT NOT NULL,
	source_name      TEXT NOT NULL,
	endpoint         TEXT NOT NULL DEFAULT '',
	success          INTEGER NOT NULL DEFAULT 1,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	estimated_cost   TEXT NOT NULL DEFAULT '0',
	actual_cost      TEXT NOT NULL DEFAULT '0',
	cache_hit        INTEGER NOT NULL DEFAULT 0,
	results_returned INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_id ON leads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_served_fingerprints_fp ON served_fingerprints(fingerprint);
CREATE INDEX IF NOT EXISTS idx_usage_events_campaign_id ON usage_events(campaign_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, cfg model.CampaignConfig) (*model.Campaign, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal campaign config")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, config, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(cfgJSON), string(model.CampaignStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert campaign")
	}

	return &model.Campaign{
		ID:        id,
		Config:    cfg,
		Status:    model.CampaignStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateCampaignStatus(ctx context.Context, campaignID string, status model.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign status %s", campaignID)
	}
	return checkRowsAffected(res, "campaign", campaignID)
}

func (s *SQLiteStore) UpdateCampaignSummary(ctx context.Context, campaignID string, status model.CampaignStatus, summary *model.CostSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(status), time.Now().UTC(), campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign summary %s", campaignID)
	}
	return checkRowsAffected(res, "campaign", campaignID)
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config, status, summary, created_at, updated_at FROM campaigns WHERE id = ?`,
		campaignID,
	)
	return scanCampaign(row)
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT id, config, status, summary, created_at, updated_at FROM campaigns WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		query += ` AND json_extract(config, '$.owner_id') = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var cfgJSON string
	var status string
	var summaryJSON sql.NullString

	if err := row.Scan(&c.ID, &cfgJSON, &status, &summaryJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan campaign")
	}

	if err := json.Unmarshal([]byte(cfgJSON), &c.Config); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal campaign config")
	}
	c.Status = model.CampaignStatus(status)
	if summaryJSON.Valid && summaryJSON.String != "" && summaryJSON.String != "null" {
		c.Summary = &model.CostSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), c.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal campaign summary")
		}
	}
	return &c, nil
}

func (s *SQLiteStore) SaveLeads(ctx context.Context, leads []model.LeadResult) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save leads")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, campaign_id, data, score, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert lead")
	}
	defer stmt.Close()

	for _, lead := range leads {
		data, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal lead")
		}
		if _, err := stmt.ExecContext(ctx, lead.ID, lead.CampaignID, string(data), lead.Score, lead.CreatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "sqlite: insert lead %s", lead.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save leads")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, campaignID string) ([]model.LeadResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM leads WHERE campaign_id = ? ORDER BY score DESC, created_at`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.LeadResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		var lead model.LeadResult
		if err := json.Unmarshal([]byte(data), &lead); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal lead")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) GetEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, request_type, request_params, response_data, confidence, cost,
		        created_at, expires_at, hit_count, last_accessed_at, is_active
		 FROM api_cache WHERE cache_key = ?`,
		key,
	)

	var e model.CacheEntry
	var params string
	var cost string

	err := row.Scan(&e.CacheKey, &e.RequestType, &params, &e.ResponseData, &e.Confidence, &cost,
		&e.CreatedAt, &e.ExpiresAt, &e.HitCount, &e.LastAccessedAt, &e.IsActive)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}

	if err := json.Unmarshal([]byte(params), &e.RequestParams); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cache params")
	}
	e.Cost, err = decimal.NewFromString(cost)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse cache cost")
	}
	return &e, nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, entry model.CacheEntry) error {
	params, err := json.Marshal(entry.RequestParams)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_cache (cache_key, request_type, request_params, response_data, confidence, cost,
		                        created_at, expires_at, hit_count, last_accessed_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   request_type = excluded.request_type,
		   request_params = excluded.request_params,
		   response_data = excluded.response_data,
		   confidence = excluded.confidence,
		   cost = excluded.cost,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at,
		   hit_count = excluded.hit_count,
		   last_accessed_at = excluded.last_accessed_at,
		   is_active = excluded.is_active`,
		entry.CacheKey, entry.RequestType, string(params), entry.ResponseData, entry.Confidence,
		entry.Cost.String(), entry.CreatedAt.UTC(), entry.ExpiresAt.UTC(), entry.HitCount,
		entry.LastAccessedAt.UTC(), entry.IsActive,
	)
	return eris.Wrap(err, "sqlite: put cache entry")
}

func (s *SQLiteStore) TouchEntry(ctx context.Context, key string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_cache SET hit_count = hit_count + 1, last_accessed_at = ? WHERE cache_key = ?`,
		at.UTC(), key,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: touch cache entry")
	}
	return checkRowsAffected(res, "cache entry", key)
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_cache WHERE expires_at <= ?`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CacheStats(ctx context.Context) (*CacheStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN is_active = 1 AND expires_at > datetime('now') THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(hit_count), 0),
		        COALESCE(SUM(hit_count * CAST(cost AS REAL)), 0)
		 FROM api_cache`,
	)

	var stats CacheStats
	var savings float64
	if err := row.Scan(&stats.Entries, &stats.ActiveEntries, &stats.TotalHits, &savings); err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	stats.EstimatedSavings = decimal.NewFromFloat(savings).Round(6)
	return &stats, nil
}

func (s *SQLiteStore) FingerprintServed(ctx context.Context, fp, ownerID string, scope model.DedupScope) (bool, error) {
	query := `SELECT COUNT(*) FROM served_fingerprints WHERE fingerprint = ?`
	args := []any{fp}
	if scope != model.DedupScopeGlobal {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, eris.Wrap(err, "sqlite: check fingerprint")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SaveFingerprints(ctx context.Context, recs []model.FingerprintRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save fingerprints")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO served_fingerprints (fingerprint, owner_id, campaign_id, lead_id, business_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint, owner_id) DO NOTHING`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert fingerprint")
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.Fingerprint, rec.OwnerID, rec.CampaignID, rec.LeadID, rec.BusinessName, rec.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert fingerprint %s", rec.Fingerprint)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save fingerprints")
}

func (s *SQLiteStore) SaveLedgerSnapshot(ctx context.Context, snap budget.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_snapshots (campaign_id, committed, ceiling, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(campaign_id) DO UPDATE SET
		   committed = excluded.committed,
		   ceiling = excluded.ceiling,
		   updated_at = excluded.updated_at`,
		snap.CampaignID, snap.Committed.String(), snap.Ceiling.String(), snap.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save ledger snapshot")
}

func (s *SQLiteStore) GetLedgerSnapshot(ctx context.Context, campaignID string) (*budget.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT campaign_id, committed, ceiling, updated_at FROM budget_snapshots WHERE campaign_id = ?`,
		campaignID,
	)

	var snap budget.Snapshot
	var committed, ceiling string
	if err := row.Scan(&snap.CampaignID, &committed, &ceiling, &snap.UpdatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get ledger snapshot")
	}

	var err error
	if snap.Committed, err = decimal.NewFromString(committed); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse committed")
	}
	if snap.Ceiling, err = decimal.NewFromString(ceiling); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse ceiling")
	}
	return &snap, nil
}

func (s *SQLiteStore) SaveUsageEvent(ctx context.Context, ev model.UsageEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (request_id, campaign_id, source_name, endpoint, success, response_time_ms,
		                           estimated_cost, actual_cost, cache_hit, results_returned, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.CampaignID, ev.SourceName, ev.Endpoint, ev.Success, ev.ResponseTimeMS,
		ev.EstimatedCost.String(), ev.ActualCost.String(), ev.CacheHit, ev.ResultsReturned,
		ev.ErrorMessage, ev.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save usage event")
}

func (s *SQLiteStore) ListUsageEvents(ctx context.Context, campaignID string) ([]model.UsageEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, campaign_id, source_name, endpoint, success, response_time_ms,
		        estimated_cost, actual_cost, cache_hit, results_returned, error_message, created_at
		 FROM usage_events WHERE campaign_id = ? ORDER BY created_at`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list usage events")
	}
	defer rows.Close()

	var events []model.UsageEvent
	for rows.Next() {
		var ev model.UsageEvent
		var estimated, actual string
		var errMsg sql.NullString
		if err := rows.Scan(&ev.RequestID, &ev.CampaignID, &ev.SourceName, &ev.Endpoint, &ev.Success,
			&ev.ResponseTimeMS, &estimated, &actual, &ev.CacheHit, &ev.ResultsReturned, &errMsg, &ev.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan usage event")
		}
		if ev.EstimatedCost, err = decimal.NewFromString(estimated); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse estimated cost")
		}
		if ev.ActualCost, err = decimal.NewFromString(actual); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse actual cost")
		}
		ev.ErrorMessage = errMsg.String
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list usage events iterate")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", kind, id)
	}
	return nil
}
