package access

// Check decides whether subject may perform action on an object with policy p.
//
// Evaluation is a priority chain; the first granting rule decides and later
// rules only add permissions:
//  1. inactive: owner/administrator may view, nobody may edit, everybody else gets ErrNotFound
//  2. owner or administrator of the owning group: view and edit
//  3. PUBLIC: anyone may view
//  4. GROUP: members of the owning group may view
//  5. allow-lists of shareable objects: view_* grants view, edit_* grants view and edit
//
// Anything else is ErrPermissionDenied.
func Check(s Subject, p Policy, a Action) error {
	o := p.Ownership
	privileged := isPrivileged(s, o)

	if !o.Active {
		if !privileged {
			return ErrNotFound
		}
		if a == ActionView {
			return nil
		}
		return ErrPermissionDenied
	}

	if privileged {
		return nil
	}

	if a == ActionView {
		switch o.Visibility {
		case VisibilityPublic:
			return nil
		case VisibilityGroup:
			if s.MemberOf(o.GroupID) {
				return nil
			}
		}
	}

	if allowListed(s, p.Sharing, a) {
		return nil
	}
	return ErrPermissionDenied
}

// Can is Check reduced to a boolean.
func Can(s Subject, p Policy, a Action) bool { return Check(s, p, a) == nil }

// CanTransfer reports whether subject may reassign ownership of o.
// Only the current owner or an administrator of the current owning group may.
func CanTransfer(s Subject, o Ownership) bool { return isPrivileged(s, o) }

// CanRestore reports whether subject may reactivate an inactive object.
func CanRestore(s Subject, o Ownership) bool { return isPrivileged(s, o) }

func isPrivileged(s Subject, o Ownership) bool {
	if s.IsAnonymous() {
		return false
	}
	return s.UserID == o.OwnerID || s.AdministratorOf(o.GroupID)
}

func allowListed(s Subject, sh *Sharing, a Action) bool {
	if sh == nil || s.IsAnonymous() {
		return false
	}
	if contains(sh.EditUsers, s.UserID) || s.memberOfAny(sh.EditGroups) {
		return true
	}
	if a == ActionView {
		return contains(sh.ViewUsers, s.UserID) || s.memberOfAny(sh.ViewGroups)
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
