package ownership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGResolver serves ownership for resource types whose records live in the
// platform database rather than behind a service endpoint. The table must
// expose id, tenant_id, owner_id, version and optional parent columns.
type PGResolver struct {
	pool    *pgxpool.Pool
	query   string
	timeout time.Duration
}

// NewPGResolver builds a resolver over one ownership table.
func NewPGResolver(pool *pgxpool.Pool, table string, timeout time.Duration) *PGResolver {
	return &PGResolver{
		pool:    pool,
		query:   fmt.Sprintf(`SELECT tenant_id, owner_id, version, parent_type, parent_id FROM %s WHERE id = $1`, table),
		timeout: timeout,
	}
}

// Resolve reads the ownership row for id.
func (r *PGResolver) Resolve(ctx context.Context, id string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		record     Record
		parentType pgtype.Text
		parentID   pgtype.Text
	)
	err := r.pool.QueryRow(ctx, r.query, id).Scan(&record.TenantID, &record.OwnerID, &record.Version, &parentType, &parentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrResourceNotFound
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Record{}, fmt.Errorf("%w: database lookup for %s", ErrResolutionTimeout, id)
		}
		return Record{}, err
	}
	if parentType.Valid && parentID.Valid {
		record.Parent = &Ref{Type: parentType.String, ID: parentID.String}
	}
	return record, nil
}
