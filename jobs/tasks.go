package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/verdant-crm/verdant/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditDigest summarises privileged-action audit activity.
	TaskAuditDigest = "audit:digest"
)

// AuditDigestPayload configures a digest run.
type AuditDigestPayload struct {
	Window time.Duration `json:"window"`
}

// NewAuditDigestTask constructs an Asynq task for the trailing window.
func NewAuditDigestTask(window time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(AuditDigestPayload{Window: window})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditDigest, data), nil
}

// NewAuditDigestHandler processes TaskAuditDigest tasks. The digest only
// reads the audit trail; a failed run never touches core state.
func NewAuditDigestHandler(svc *audit.Service, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditDigestPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		counts, err := svc.Digest(ctx, payload.Window)
		if err != nil {
			return err
		}
		for _, count := range counts {
			actor := "system"
			if count.ActorID != nil {
				actor = count.ActorID.String()
			}
			logger.Info("audit digest",
				slog.String("actor", actor),
				slog.String("action", count.Action),
				slog.Int64("count", count.Count))
		}
		logger.Info("audit digest complete", slog.Int("groups", len(counts)))
		return nil
	}
}
