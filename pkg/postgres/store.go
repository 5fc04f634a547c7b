package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps the pool. Run Migrate before first use.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("postgres: pool cannot be nil")
	}
	return &Store{pool: pool}
}

func (s *Store) LoadDomain(ctx context.Context, name string) (*authz.Domain, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM authz_domains WHERE name = $1`, name).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: domain %q", authz.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", name, err)
	}

	var d authz.Domain
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("postgres: decode %s: %w", name, err)
	}
	return &d, nil
}

func (s *Store) CommitDomain(ctx context.Context, d *authz.Domain, expectedTag uint64) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", d.Name, err)
	}

	if expectedTag == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO authz_domains (name, tag, modified, account, product_id, business_service, doc)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			d.Name, int64(d.Tag), d.Modified, d.Meta.Account, d.Meta.ProductID, d.Meta.BusinessService, doc)
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: domain %q already exists", authz.ErrConflict, d.Name)
		}
		if err != nil {
			return fmt.Errorf("postgres: create %s: %w", d.Name, err)
		}
		return nil
	}

	res, err := s.pool.Exec(ctx,
		`UPDATE authz_domains
		 SET tag = $1, modified = $2, account = $3, product_id = $4, business_service = $5, doc = $6
		 WHERE name = $7 AND tag = $8`,
		int64(d.Tag), d.Modified, d.Meta.Account, d.Meta.ProductID, d.Meta.BusinessService, doc,
		d.Name, int64(expectedTag))
	if err != nil {
		return fmt.Errorf("postgres: commit %s: %w", d.Name, err)
	}
	if res.RowsAffected() == 0 {
		return s.missOrConflict(ctx, d.Name)
	}
	return nil
}

func (s *Store) DeleteDomain(ctx context.Context, name string, expectedTag uint64) error {
	res, err := s.pool.Exec(ctx,
		`DELETE FROM authz_domains WHERE name = $1 AND tag = $2`, name, int64(expectedTag))
	if err != nil {
		return fmt.Errorf("postgres: delete %s: %w", name, err)
	}
	if res.RowsAffected() == 0 {
		return s.missOrConflict(ctx, name)
	}
	return nil
}

// missOrConflict disambiguates a zero-row tag-guarded write: the domain is
// either gone (NotFound) or was moved past the expected tag (Conflict).
func (s *Store) missOrConflict(ctx context.Context, name string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM authz_domains WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: domain %q", authz.ErrNotFound, name)
	}
	return fmt.Errorf("%w: domain %q was modified concurrently", authz.ErrConflict, name)
}

func (s *Store) ListDomains(ctx context.Context, f store.Filter) ([]string, error) {
	// The indexed columns narrow the scan; tag and role-member predicates
	// need the document and are applied after decoding.
	query := `SELECT name, doc FROM authz_domains WHERE true`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Prefix != "" {
		query += ` AND name LIKE ` + arg(likeEscape(f.Prefix)+"%")
	}
	if f.Account != "" {
		query += ` AND account = ` + arg(f.Account)
	}
	if f.ProductID != 0 {
		query += ` AND product_id = ` + arg(f.ProductID)
	}
	if f.BusinessService != "" {
		query += ` AND business_service = ` + arg(f.BusinessService)
	}
	if !f.ModifiedSince.IsZero() {
		query += ` AND modified >= ` + arg(f.ModifiedSince)
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list domains: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		var doc []byte
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, fmt.Errorf("postgres: list domains: %w", err)
		}
		var d authz.Domain
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("postgres: decode %s: %w", name, err)
		}
		if f.Matches(&d) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list domains: %w", err)
	}

	slices.Sort(names)
	return f.Page(names), nil
}

// likeEscape neutralizes LIKE metacharacters in a literal prefix.
func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := range len(s) {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
