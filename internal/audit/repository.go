package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs. Writes go through Recorder only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns entries matching the filters, newest first. Limit and offset
// come in through ListParams so the service controls paging.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR resource_type = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY created_at DESC, id DESC
		OFFSET $6 LIMIT $7`,
		params.ActorID, params.Action, params.ResourceType,
		nullableTime(params.From), nullableTime(params.To),
		params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry            Entry
			oldJSON, newJSON []byte
			ip, ua           *string
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.ResourceType,
			&entry.ResourceID, &oldJSON, &newJSON, &ip, &ua, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(oldJSON) > 0 {
			if err := json.Unmarshal(oldJSON, &entry.OldValues); err != nil {
				return nil, err
			}
		}
		if len(newJSON) > 0 {
			if err := json.Unmarshal(newJSON, &entry.NewValues); err != nil {
				return nil, err
			}
		}
		if ip != nil {
			entry.IPAddress = *ip
		}
		if ua != nil {
			entry.UserAgent = *ua
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ActionCounts aggregates entries per actor and action since the given time.
func (r *Repository) ActionCounts(ctx context.Context, since time.Time) ([]ActionCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, action, COUNT(*)
		FROM audit_logs
		WHERE created_at >= $1
		GROUP BY user_id, action
		ORDER BY COUNT(*) DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []ActionCount
	for rows.Next() {
		var count ActionCount
		if err := rows.Scan(&count.ActorID, &count.Action, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

// ListParams carries resolved paging values to the repository.
type ListParams struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	From         time.Time
	To           time.Time
	Offset       int
	Limit        int
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
