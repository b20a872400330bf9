package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

//go:embed schema.sql
var schemaSQL string

const upsertPropertySQL = `
INSERT INTO properties (
    source_name, source_listing_id, listing_type, suburb, state, postcode,
    property_type, bedrooms, bathrooms, parking, price_amount, listed_at,
    scraped_at, last_updated, document
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (source_name, source_listing_id) DO UPDATE SET
    listing_type  = COALESCE(NULLIF(EXCLUDED.listing_type, ''), properties.listing_type),
    suburb        = EXCLUDED.suburb,
    state         = EXCLUDED.state,
    postcode      = EXCLUDED.postcode,
    property_type = EXCLUDED.property_type,
    bedrooms      = EXCLUDED.bedrooms,
    bathrooms     = EXCLUDED.bathrooms,
    parking       = EXCLUDED.parking,
    price_amount  = EXCLUDED.price_amount,
    listed_at     = EXCLUDED.listed_at,
    scraped_at    = EXCLUDED.scraped_at,
    last_updated  = GREATEST(properties.last_updated, EXCLUDED.last_updated),
    document      = EXCLUDED.document`

// The columns override the document so merged values win.
const selectPropertyColumns = `document, listing_type, last_updated`

const saveJobSQL = `
INSERT INTO scrape_jobs (id, kind, priority, status, params, urls, result, errors, submitted_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    status       = EXCLUDED.status,
    result       = EXCLUDED.result,
    errors       = EXCLUDED.errors,
    started_at   = EXCLUDED.started_at,
    completed_at = EXCLUDED.completed_at`

const updateJobSQL = `
UPDATE scrape_jobs
SET status = $2, result = $3, errors = $4, started_at = $5, completed_at = $6
WHERE id = $1`

const insertExecutionSQL = `
INSERT INTO search_executions (
    id, cache_key, params, result_count, total_count, latency_ms, sources,
    stale, refresh_job_id, succeeded, error, session_id, remote_addr,
    user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// NewPostgresPool opens a connection pool and verifies it answers.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Postgres is the Store backed by PostgreSQL. Each listing is held as a JSONB
// document next to the columns used for filtering and ordering.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables and indexes if they are missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// UpsertMany writes the batch in a single transaction.
func (p *Postgres) UpsertMany(ctx context.Context, records []models.Property) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateBatch(records); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		args, err := propertyArgs(r)
		if err != nil {
			return err
		}
		batch.Queue(upsertPropertySQL, args...)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	br := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert %s: %w", records[i].Key(), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close upsert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func propertyArgs(r models.Property) ([]interface{}, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Key(), err)
	}
	return []interface{}{
		r.SourceName,
		r.SourceListingID,
		string(r.ListingType),
		r.Address.Suburb,
		strings.ToUpper(r.Address.State),
		r.Address.Postcode,
		string(r.Details.PropertyType),
		r.Details.Bedrooms,
		r.Details.Bathrooms,
		r.Details.Parking,
		r.Price.Amount,
		r.Metadata.ListedAt,
		r.Metadata.ScrapedAt,
		r.Metadata.LastUpdated,
		doc,
	}, nil
}

func (p *Postgres) Query(ctx context.Context, filter models.PropertyFilter, offset, limit int) ([]models.Property, int, error) {
	if offset < 0 {
		offset = 0
	}
	qb := applyFilter(filter)
	where := qb.where()
	countArgs := append([]interface{}(nil), qb.args...)

	sql := fmt.Sprintf("SELECT %s FROM properties %s %s OFFSET %s", selectPropertyColumns, where, orderBy(filter.Sort), qb.next(offset))
	if limit > 0 {
		sql += " LIMIT " + qb.next(limit)
	}

	var (
		records []models.Property
		total   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := p.pool.Query(gctx, sql, qb.args...)
		if err != nil {
			return fmt.Errorf("query properties: %w", err)
		}
		records, err = collectProperties(rows)
		return err
	})
	g.Go(func() error {
		err := p.pool.QueryRow(gctx, "SELECT count(*) FROM properties "+where, countArgs...).Scan(&total)
		if err != nil {
			return fmt.Errorf("count properties: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func collectProperties(rows pgx.Rows) ([]models.Property, error) {
	defer rows.Close()
	out := make([]models.Property, 0)
	for rows.Next() {
		prop, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read properties: %w", err)
	}
	return out, nil
}

func scanProperty(row pgx.Row) (models.Property, error) {
	var (
		doc         []byte
		listingType string
		lastUpdated time.Time
		prop        models.Property
	)
	if err := row.Scan(&doc, &listingType, &lastUpdated); err != nil {
		return prop, err
	}
	if err := json.Unmarshal(doc, &prop); err != nil {
		return prop, fmt.Errorf("decode property document: %w", err)
	}
	prop.ListingType = models.ListingType(listingType)
	prop.Metadata.LastUpdated = lastUpdated
	return prop, nil
}

func (p *Postgres) GetByKey(ctx context.Context, key models.NaturalKey) (*models.Property, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT "+selectPropertyColumns+" FROM properties WHERE source_name = $1 AND source_listing_id = $2",
		key.SourceName, key.SourceListingID)
	prop, err := scanProperty(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("property %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", key, err)
	}
	return &prop, nil
}

func (p *Postgres) LocationSuggestions(ctx context.Context, prefix string, limit int) ([]models.Location, error) {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	like := likePrefix(strings.TrimSpace(prefix))
	rows, err := p.pool.Query(ctx, `
SELECT suburb, state, postcode, count(*) AS listings
FROM properties
WHERE suburb <> '' AND postcode <> '' AND (lower(suburb) LIKE $1 OR postcode LIKE $1)
GROUP BY suburb, state, postcode
ORDER BY listings DESC, suburb, postcode
LIMIT $2`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("location suggestions: %w", err)
	}
	defer rows.Close()

	locs := make([]models.Location, 0, limit)
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.Suburb, &loc.State, &loc.Postcode, &loc.Listings); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}
	return locs, nil
}

func (p *Postgres) SaveJob(ctx context.Context, job *models.ScrapeJob) error {
	params, urls, result, errs, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, saveJobSQL,
		job.ID, string(job.Kind), job.Priority.String(), string(job.Status),
		params, urls, result, errs, job.SubmittedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Postgres) UpdateJobResult(ctx context.Context, job *models.ScrapeJob) error {
	_, _, result, errs, err := encodeJob(job)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, updateJobSQL,
		job.ID, string(job.Status), result, errs, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func encodeJob(job *models.ScrapeJob) (params, urls, result, errs []byte, err error) {
	if params, err = json.Marshal(job.Params); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode job params: %w", err)
	}
	if urls, err = json.Marshal(nonNilStrings(job.URLs)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode job urls: %w", err)
	}
	if job.Result != nil {
		if result, err = json.Marshal(job.Result); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode job result: %w", err)
		}
	}
	if errs, err = json.Marshal(nonNilStrings(job.Errors)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode job errors: %w", err)
	}
	return params, urls, result, errs, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (p *Postgres) AppendExecutionRecord(ctx context.Context, record models.SearchExecutionRecord) error {
	params, err := json.Marshal(record.Params)
	if err != nil {
		return fmt.Errorf("encode execution params: %w", err)
	}
	sources := make([]string, len(record.Sources))
	for i, s := range record.Sources {
		sources[i] = string(s)
	}
	_, err = p.pool.Exec(ctx, insertExecutionSQL,
		record.ID, record.CacheKey, params, record.ResultCount, record.TotalCount,
		record.Latency.Milliseconds(), sources, record.Stale, record.RefreshJobID,
		record.Succeeded(), record.Error, record.Requester.SessionID,
		record.Requester.RemoteAddr, record.Requester.UserAgent, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("append execution %s: %w", record.ID, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
