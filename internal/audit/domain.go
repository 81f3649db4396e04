package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the authorization core. Host applications may report
// additional action labels for their own resource mutations.
const (
	ActionCreate           = "create"
	ActionUpdate           = "update"
	ActionDelete           = "delete"
	ActionMergePermissions = "merge_permissions"
	ActionDeactivate       = "deactivate"
	ActionReactivate       = "reactivate"
	ActionAssign           = "assign"
	ActionRevoke           = "revoke"
	ActionLock             = "lock"
	ActionUnlock           = "unlock"
)

// Resource types owned by the authorization core.
const (
	ResourceRole     = "role"
	ResourceUser     = "user"
	ResourceUserRole = "user_role"
)

// Entry is one append-only audit record. ActorID is nil for system-initiated
// changes; ResourceID is nil for bulk or type-level actions.
type Entry struct {
	ID           uuid.UUID
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	OldValues    map[string]any
	NewValues    map[string]any
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// Filters narrows a timeline query. Zero values mean "no filter".
type Filters struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// ActionCount aggregates entries per actor and action over a window.
type ActionCount struct {
	ActorID *uuid.UUID
	Action  string
	Count   int64
}

// PagingInfo describes timeline paging state.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}
