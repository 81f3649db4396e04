package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the executor the recorder writes through. Both pgx.Tx and
// *pgxpool.Pool satisfy it, so a record can join the transaction of the
// mutation it documents.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder appends entries to audit_logs. It is the only writer to that table;
// no update or delete is exposed anywhere in this package.
type Recorder struct{}

// NewRecorder returns a new Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record persists one entry through q. When q is the transaction of the
// mutation being documented, the entry commits or rolls back with it.
func (r *Recorder) Record(ctx context.Context, q Querier, entry Entry) error {
	if entry.Action == "" || entry.ResourceType == "" {
		return errors.New("audit: entry requires action and resource_type")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	oldJSON, err := marshalValues(entry.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := marshalValues(entry.NewValues)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)`,
		entry.ID, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		oldJSON, newJSON, entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

// PoolRecorder binds a Recorder to a pool for host-application mutations that
// do not run inside one of the core's transactions.
type PoolRecorder struct {
	recorder *Recorder
	pool     *pgxpool.Pool
}

// NewPoolRecorder returns a Recorder writing through the given pool.
func NewPoolRecorder(pool *pgxpool.Pool) *PoolRecorder {
	return &PoolRecorder{recorder: NewRecorder(), pool: pool}
}

// Record persists one entry in its own implicit transaction.
func (r *PoolRecorder) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: pool recorder not initialised")
	}
	return r.recorder.Record(ctx, r.pool, entry)
}

func marshalValues(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}
