package access

import (
	"errors"
	"sort"
)

// Principal is the kind of entry in an allow-list.
type Principal string

const (
	PrincipalUser  Principal = "user"
	PrincipalGroup Principal = "group"
)

func ParsePrincipal(s string) (Principal, bool) {
	switch Principal(s) {
	case PrincipalUser, PrincipalGroup:
		return Principal(s), true
	default:
		return "", false
	}
}

var ErrInvalidGrant = errors.New("access: invalid grant")

// Grant names one allow-list entry.
type Grant struct {
	Action      Action    `json:"action"`
	Principal   Principal `json:"principal"`
	PrincipalID string    `json:"principal_id"`
}

func (g Grant) Validate() error {
	if g.PrincipalID == "" {
		return ErrInvalidGrant
	}
	if g.Action != ActionView && g.Action != ActionEdit {
		return ErrInvalidGrant
	}
	if g.Principal != PrincipalUser && g.Principal != PrincipalGroup {
		return ErrInvalidGrant
	}
	return nil
}

func (sh *Sharing) list(g Grant) *[]string {
	switch {
	case g.Action == ActionEdit && g.Principal == PrincipalGroup:
		return &sh.EditGroups
	case g.Action == ActionEdit && g.Principal == PrincipalUser:
		return &sh.EditUsers
	case g.Action == ActionView && g.Principal == PrincipalGroup:
		return &sh.ViewGroups
	default:
		return &sh.ViewUsers
	}
}

// Add inserts the grant. It reports whether the allow-list changed.
func (sh *Sharing) Add(g Grant) bool {
	l := sh.list(g)
	if contains(*l, g.PrincipalID) {
		return false
	}
	*l = append(*l, g.PrincipalID)
	sort.Strings(*l)
	return true
}

// Remove deletes the grant. It reports whether the allow-list changed.
func (sh *Sharing) Remove(g Grant) bool {
	l := sh.list(g)
	out := (*l)[:0]
	removed := false
	for _, id := range *l {
		if id == g.PrincipalID {
			removed = true
			continue
		}
		out = append(out, id)
	}
	*l = out
	return removed
}

// Grants flattens the allow-lists, for persistence.
func (sh Sharing) Grants() []Grant {
	var out []Grant
	add := func(a Action, p Principal, ids []string) {
		for _, id := range ids {
			out = append(out, Grant{Action: a, Principal: p, PrincipalID: id})
		}
	}
	add(ActionEdit, PrincipalGroup, sh.EditGroups)
	add(ActionEdit, PrincipalUser, sh.EditUsers)
	add(ActionView, PrincipalGroup, sh.ViewGroups)
	add(ActionView, PrincipalUser, sh.ViewUsers)
	return out
}

// Clone returns a deep copy.
func (sh Sharing) Clone() Sharing {
	cp := func(in []string) []string {
		if in == nil {
			return nil
		}
		return append([]string(nil), in...)
	}
	return Sharing{
		EditGroups: cp(sh.EditGroups),
		EditUsers:  cp(sh.EditUsers),
		ViewGroups: cp(sh.ViewGroups),
		ViewUsers:  cp(sh.ViewUsers),
	}
}
