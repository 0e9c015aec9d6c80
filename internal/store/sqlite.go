package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/compintel-cli/internal/model"
)

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
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS products (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	competitor     TEXT NOT NULL,
	product_name   TEXT NOT NULL,
	brand          TEXT,
	category       TEXT,
	price          REAL,
	original_price REAL,
	launch_date    TEXT,
	product_url    TEXT NOT NULL,
	image_url      TEXT,
	description    TEXT,
	availability   TEXT,
	rating         REAL,
	review_count   INTEGER,
	sku            TEXT,
	confidence     REAL NOT NULL,
	low_confidence INTEGER NOT NULL DEFAULT 0,
	source_url     TEXT NOT NULL,
	collected_at   DATETIME NOT NULL,
	PRIMARY KEY (competitor, product_url)
);

CREATE TABLE IF NOT EXISTS promotions (
	run_id              TEXT NOT NULL REFERENCES runs(id),
	competitor          TEXT NOT NULL,
	promo_title         TEXT NOT NULL,
	promo_title_key     TEXT NOT NULL,
	promo_type          TEXT NOT NULL,
	promo_code          TEXT,
	discount_value      REAL,
	minimum_purchase    REAL,
	start_date          TEXT,
	end_date            TEXT,
	applicable_products TEXT,
	exclusions          TEXT,
	promo_url           TEXT NOT NULL,
	image_url           TEXT,
	description         TEXT,
	terms               TEXT,
	confidence          REAL NOT NULL,
	low_confidence      INTEGER NOT NULL DEFAULT 0,
	source_url          TEXT NOT NULL,
	collected_at        DATETIME NOT NULL,
	PRIMARY KEY (competitor, promo_url, promo_title_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_products_run_id ON products(run_id);
CREATE INDEX IF NOT EXISTS idx_promotions_run_id ON promotions(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Status, run.StartedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run model.Run) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		run.Status, string(statsJSON), run.FinishedAt.UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, stats, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var stats sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Status, &stats, &run.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if stats.Valid && stats.String != "" {
			if err := json.Unmarshal([]byte(stats.String), &run.Stats); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal stats for run %s", run.ID)
			}
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) SaveProducts(ctx context.Context, runID string, records []model.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := upsertQuery("products", productColumns, []string{"competitor", "product_url"})
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query, productRow(runID, rec)...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert product %s", rec.ProductURL)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit products")
}

func (s *SQLiteStore) SavePromotions(ctx context.Context, runID string, records []model.PromotionRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := upsertQuery("promotions", promotionColumns, []string{"competitor", "promo_url", "promo_title_key"})
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query, promotionRow(runID, rec)...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert promotion %s", rec.PromoURL)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit promotions")
}

func (s *SQLiteStore) Products(ctx context.Context) ([]model.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectProductsQuery())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select products")
	}
	defer rows.Close()

	var out []model.ProductRecord
	for rows.Next() {
		var r model.ProductRecord
		if err := rows.Scan(
			&r.Competitor, &r.ProductName, &r.Brand, &r.Category,
			&r.Price, &r.OriginalPrice, &r.LaunchDate, &r.ProductURL, &r.ImageURL,
			&r.Description, &r.Availability, &r.Rating, &r.ReviewCount, &r.SKU,
			&r.Confidence, &r.LowConfidence, &r.SourceURL, &r.CollectedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: select products")
}

func (s *SQLiteStore) Promotions(ctx context.Context) ([]model.PromotionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectPromotionsQuery())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select promotions")
	}
	defer rows.Close()

	var out []model.PromotionRecord
	for rows.Next() {
		var r model.PromotionRecord
		var promoType string
		if err := rows.Scan(
			&r.Competitor, &r.PromoTitle, &promoType, &r.PromoCode,
			&r.DiscountValue, &r.MinimumPurchase, &r.StartDate, &r.EndDate,
			&r.ApplicableProducts, &r.Exclusions, &r.PromoURL, &r.ImageURL,
			&r.Description, &r.Terms, &r.Confidence, &r.LowConfidence,
			&r.SourceURL, &r.CollectedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan promotion")
		}
		r.PromoType = model.PromoType(promoType)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: select promotions")
}

// upsertQuery builds an INSERT ... ON CONFLICT DO UPDATE for SQLite's
// positional placeholders.
func upsertQuery(table string, columns, conflictKeys []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	conflictSet := make(map[string]bool, len(conflictKeys))
	for _, k := range conflictKeys {
		conflictSet[k] = true
	}
	var setClauses []string
	for _, c := range columns {
		if !conflictSet[c] {
			setClauses = append(setClauses, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		placeholders,
		strings.Join(conflictKeys, ", "),
		strings.Join(setClauses, ", "),
	)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
