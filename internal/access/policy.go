package access

import (
	"errors"
	"time"
)

// Visibility is the coarse audience of an owned object.
type Visibility string

const (
	VisibilityGroup   Visibility = "GROUP"
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityGroup, VisibilityPublic, VisibilityPrivate:
		return true
	default:
		return false
	}
}

// Action is what a subject wants to do with an object.
type Action string

const (
	ActionView Action = "view"
	ActionEdit Action = "edit"
)

func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionView, ActionEdit:
		return Action(s), true
	default:
		return "", false
	}
}

var (
	// ErrNotFound hides the existence of objects the subject may not see.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when the object is visible but the action is not allowed.
	ErrPermissionDenied = errors.New("permission denied")
)

// Ownership is embedded in every owned entity.
//
// Invariants:
// - OwnerID and GroupID are set at creation and never cleared.
// - Inactive objects are soft-deleted and excluded from listings.
type Ownership struct {
	Active     bool       `json:"active" db:"active"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	OwnerID    string     `json:"owner_id" db:"owner_id"`
	GroupID    string     `json:"group_id" db:"group_id"`
	Visibility Visibility `json:"visibility" db:"visibility"`
}

// NewOwnership returns an active ownership record. Visibility defaults to GROUP.
func NewOwnership(ownerID, groupID string, vis Visibility, now time.Time) Ownership {
	if vis == "" {
		vis = VisibilityGroup
	}
	return Ownership{
		Active:     true,
		UpdatedAt:  now,
		OwnerID:    ownerID,
		GroupID:    groupID,
		Visibility: vis,
	}
}

// Touch records a mutation.
func (o *Ownership) Touch(now time.Time) { o.UpdatedAt = now }

// Sharing holds the explicit allow-lists of a shareable object.
// Each list is a set; order is irrelevant and duplicates are dropped on mutation.
type Sharing struct {
	EditGroups []string `json:"edit_groups"`
	EditUsers  []string `json:"edit_users"`
	ViewGroups []string `json:"view_groups"`
	ViewUsers  []string `json:"view_users"`
}

// Policy is what the access check evaluates: an ownership record plus,
// for shareable kinds, the allow-lists.
type Policy struct {
	Ownership Ownership
	Sharing   *Sharing
}

// Owned is implemented by every entity governed by ownership.
type Owned interface {
	AccessPolicy() Policy
}
