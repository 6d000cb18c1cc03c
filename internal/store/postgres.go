package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dynamicmart/pricing-engine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	tags          TEXT[] NOT NULL DEFAULT '{}',
	image         TEXT NOT NULL DEFAULT '',
	base_price    NUMERIC NOT NULL CHECK (base_price > 0),
	current_price NUMERIC NOT NULL CHECK (current_price > 0),
	stock         INTEGER NOT NULL CHECK (stock >= 0),
	demand        INTEGER NOT NULL CHECK (demand >= 0),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS price_history (
	product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	price      NUMERIC NOT NULL,
	reason     TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (product_id, seq)
);`

// PostgresStore implements Store using PostgreSQL.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO products (id, name, description, category, tags, image,
		                       base_price, current_price, stock, demand, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Description, p.Category, tags, p.Image,
		p.BasePrice.String(), p.CurrentPrice.String(),
		p.Stock, p.Demand, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, p.ID)
	}

	if err := insertHistory(ctx, tx, p.ID, 0, p.PriceHistory); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return getProduct(ctx, s.pool, id, false)
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		p, err := getProduct(ctx, s.pool, id, false)
		if errors.Is(err, ErrNotFound) {
			continue // deleted between the two queries
		}
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// UpdateProduct locks the product row for the duration of fn, so concurrent
// updates to the same product are serialized across processes too.
func (s *PostgresStore) UpdateProduct(ctx context.Context, id string, fn UpdateFunc) (*model.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := getProduct(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	before := len(current.PriceHistory)

	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE products
		 SET current_price = $2::NUMERIC, stock = $3, demand = $4
		 WHERE id = $1`,
		id, working.CurrentPrice.String(), working.Stock, working.Demand,
	)
	if err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}

	if len(working.PriceHistory) > before {
		if err := insertHistory(ctx, tx, id, before, working.PriceHistory[before:]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &working, nil
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, id string) ([]model.PricePoint, error) {
	p, err := getProduct(ctx, s.pool, id, false)
	if err != nil {
		return nil, err
	}
	return p.PriceHistory, nil
}

func getProduct(ctx context.Context, q querier, id string, forUpdate bool) (*model.Product, error) {
	query := `SELECT id, name, description, category, tags, image,
	                 base_price::TEXT, current_price::TEXT, stock, demand, created_at
	          FROM products WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p model.Product
	var base, current string
	err := q.QueryRow(ctx, query, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Tags, &p.Image,
			&base, &current, &p.Stock, &p.Demand, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}

	p.BasePrice, _ = decimal.NewFromString(base)
	p.CurrentPrice, _ = decimal.NewFromString(current)

	p.PriceHistory, err = getHistory(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func getHistory(ctx context.Context, q querier, id string) ([]model.PricePoint, error) {
	rows, err := q.Query(ctx,
		`SELECT price::TEXT, reason, timestamp
		 FROM price_history WHERE product_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []model.PricePoint
	for rows.Next() {
		var pp model.PricePoint
		var priceS string
		if err := rows.Scan(&priceS, &pp.Reason, &pp.Timestamp); err != nil {
			return nil, err
		}
		pp.Price, _ = decimal.NewFromString(priceS)
		history = append(history, pp)
	}
	return history, rows.Err()
}

func insertHistory(ctx context.Context, q querier, id string, startSeq int, points []model.PricePoint) error {
	for i, pp := range points {
		_, err := q.Exec(ctx,
			`INSERT INTO price_history (product_id, seq, price, reason, timestamp)
			 VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
			id, startSeq+i, pp.Price.String(), pp.Reason, pp.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert price history for %s: %w", id, err)
		}
	}
	return nil
}
