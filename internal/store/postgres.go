package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/compintel-cli/internal/db"
	"github.com/sells-group/compintel-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       JSONB,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS products (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	competitor     TEXT NOT NULL,
	product_name   TEXT NOT NULL,
	brand          TEXT,
	category       TEXT,
	price          DOUBLE PRECISION,
	original_price DOUBLE PRECISION,
	launch_date    TEXT,
	product_url    TEXT NOT NULL,
	image_url      TEXT,
	description    TEXT,
	availability   TEXT,
	rating         DOUBLE PRECISION,
	review_count   INTEGER,
	sku            TEXT,
	confidence     DOUBLE PRECISION NOT NULL,
	low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
	source_url     TEXT NOT NULL,
	collected_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (competitor, product_url)
);

CREATE TABLE IF NOT EXISTS promotions (
	run_id              TEXT NOT NULL REFERENCES runs(id),
	competitor          TEXT NOT NULL,
	promo_title         TEXT NOT NULL,
	promo_title_key     TEXT NOT NULL,
	promo_type          TEXT NOT NULL,
	promo_code          TEXT,
	discount_value      DOUBLE PRECISION,
	minimum_purchase    DOUBLE PRECISION,
	start_date          TEXT,
	end_date            TEXT,
	applicable_products TEXT,
	exclusions          TEXT,
	promo_url           TEXT NOT NULL,
	image_url           TEXT,
	description         TEXT,
	terms               TEXT,
	confidence          DOUBLE PRECISION NOT NULL,
	low_confidence      BOOLEAN NOT NULL DEFAULT FALSE,
	source_url          TEXT NOT NULL,
	collected_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (competitor, promo_url, promo_title_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_products_run_id ON products(run_id);
CREATE INDEX IF NOT EXISTS idx_promotions_run_id ON promotions(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		run.ID, run.Status, run.StartedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run model.Run) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, finished_at = $3 WHERE id = $4`,
		run.Status, statsJSON, run.FinishedAt.UTC(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, stats, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var stats []byte
		var finished *time.Time
		if err := rows.Scan(&run.ID, &run.Status, &stats, &run.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(stats) > 0 {
			if err := json.Unmarshal(stats, &run.Stats); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal stats for run %s", run.ID)
			}
		}
		if finished != nil {
			run.FinishedAt = *finished
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) SaveProducts(ctx context.Context, runID string, records []model.ProductRecord) error {
	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = productRow(runID, rec)
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "products",
		Columns:      productColumns,
		ConflictKeys: []string{"competitor", "product_url"},
	}, rows)
	return eris.Wrap(err, "postgres: save products")
}

func (s *PostgresStore) SavePromotions(ctx context.Context, runID string, records []model.PromotionRecord) error {
	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = promotionRow(runID, rec)
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "promotions",
		Columns:      promotionColumns,
		ConflictKeys: []string{"competitor", "promo_url", "promo_title_key"},
	}, rows)
	return eris.Wrap(err, "postgres: save promotions")
}

func (s *PostgresStore) Products(ctx context.Context) ([]model.ProductRecord, error) {
	rows, err := s.pool.Query(ctx, selectProductsQuery())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select products")
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
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: select products")
}

func (s *PostgresStore) Promotions(ctx context.Context) ([]model.PromotionRecord, error) {
	rows, err := s.pool.Query(ctx, selectPromotionsQuery())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select promotions")
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
			return nil, eris.Wrap(err, "postgres: scan promotion")
		}
		r.PromoType = model.PromoType(promoType)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: select promotions")
}
