package audit

import "time"

// Event is an immutable, append-only audit log record of a permission-relevant change:
// ownership transfers, soft deletes and restores, allow-list edits and group role changes.
//
// Invariants:
// - Events are never updated or deleted.
// - Type and ObjectID are required.
// - Audit is best-effort; callers never fail a committed change because the audit append failed.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	// ObjectKind is the entity kind (script, question, prompt, campaign, number, group).
	ObjectKind string `json:"object_kind" db:"object_kind"`
	ObjectID   string `json:"object_id" db:"object_id"`
	// GroupID is the owning group at the time of the event.
	GroupID string `json:"group_id,omitempty" db:"group_id"`

	Message string `json:"message,omitempty" db:"message"`
	// Metadata is optional JSON with the details of the change.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeOwnershipTransferred EventType = "ownership_transferred"
	EventTypeDeactivated          EventType = "deactivated"
	EventTypeRestored             EventType = "restored"
	EventTypeSharingChanged       EventType = "sharing_changed"
	EventTypeRoleChanged          EventType = "group_role_changed"
)
