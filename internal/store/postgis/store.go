// Package postgis runs the point-in-polygon coverage query against PostGIS.
package postgis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
	"github.com/mohammed-shakir/coverage-cache/internal/core/observability"
	"github.com/mohammed-shakir/coverage-cache/internal/metrics"
)

const DefaultQueryTimeout = 3 * time.Second

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Tables struct {
	Coverage string
	Product  string
}

type Store struct {
	db      Querier
	logger  *slog.Logger
	timeout time.Duration
	tables  Tables
}

func New(db Querier, logger *slog.Logger, timeout time.Duration, t Tables) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if t.Coverage == "" {
		t.Coverage = "coverage_table"
	}
	if t.Product == "" {
		t.Product = "product_table"
	}
	return &Store{db: db, logger: logger, timeout: timeout, tables: t}
}

type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// Open creates the shared connection pool and verifies it with a ping.
func Open(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	if strings.TrimSpace(pc.URL) == "" {
		return nil, errors.New("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "coverage-cache"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func PoolStats(p *pgxpool.Pool) func() metrics.PoolStats {
	return func() metrics.PoolStats {
		s := p.Stat()
		return metrics.PoolStats{
			Acquired:     s.AcquiredConns(),
			Idle:         s.IdleConns(),
			Total:        s.TotalConns(),
			Max:          s.MaxConns(),
			AcquireCount: s.AcquireCount(),
			EmptyAcquire: s.EmptyAcquireCount(),
		}
	}
}

// FindCoverage issues exactly one containment query for the lookup. Rows
// come back cheapest first; unpriced products sort last.
func (s *Store) FindCoverage(ctx context.Context, l model.Lookup) ([]model.CoverageRecord, error) {
	sql, args := s.buildQuery(l)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	recs, err := s.query(ctx, sql, args)
	dur := time.Since(start)
	observability.ObserveStoreQuery(err, dur.Seconds())
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "coverage query done",
		"rows", len(recs),
		"by_address", l.ByAddress(),
		"mediums", len(l.Mediums),
		"dur", dur.String())
	return recs, nil
}

func (s *Store) query(ctx context.Context, sql string, args []any) ([]model.CoverageRecord, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("coverage query: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("coverage rows: %w", err)
	}
	return recs, nil
}

func scanRecord(row pgx.CollectableRow) (model.CoverageRecord, error) {
	var r model.CoverageRecord
	if err := row.Scan(&r.Provider, &r.Product, &r.Status, &r.Medium, &r.Price); err != nil {
		return model.CoverageRecord{}, fmt.Errorf("scan coverage row: %w", err)
	}
	return r, nil
}

func (s *Store) buildQuery(l model.Lookup) (string, []any) {
	cov := pgx.Identifier(strings.Split(s.tables.Coverage, ".")).Sanitize()
	prod := pgx.Identifier(strings.Split(s.tables.Product, ".")).Sanitize()

	var b strings.Builder
	b.WriteString("SELECT c.provider, c.product, COALESCE(c.status, ''), COALESCE(c.medium, ''), p.price::float8\n")
	b.WriteString("FROM " + cov + " c\n")
	b.WriteString("JOIN " + prod + " p ON c.product = p.product_name\n")

	args := make([]any, 0, 3)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if l.Point != nil {
		// x is longitude, y is latitude
		x := next(l.Point.Lon)
		y := next(l.Point.Lat)
		b.WriteString("WHERE ST_Contains(c.geom, ST_SetSRID(ST_MakePoint(" + x + ", " + y + "), 4326))\n")
	} else {
		b.WriteString("WHERE c.address = " + next(l.Address) + "\n")
	}
	if ms := model.NormalizeMediums(l.Mediums); len(ms) > 0 {
		b.WriteString("AND lower(c.medium) = ANY(" + next(ms) + ")\n")
	}
	b.WriteString("ORDER BY p.price ASC NULLS LAST, c.provider, c.product")
	return b.String(), args
}
