package project

// FindMember returns the entry for userID, if any.
func FindMember(members []Member, userID string) (Member, bool) {
	if userID == "" {
		return Member{}, false
	}

	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}

	return Member{}, false
}

// IsMember reports whether userID is on the membership list.
func IsMember(members []Member, userID string) bool {
	_, ok := FindMember(members, userID)
	return ok
}

// Allows decides whether userID may exercise permission on a project with the given
// membership list. Non-members are denied. Owners and admins are allowed everything.
// Anyone else needs the named permission stored as true; unknown names are denied.
func Allows(members []Member, userID string, permission Permission) bool {
	m, ok := FindMember(members, userID)
	if !ok {
		return false
	}

	if m.Role == RoleOwner || m.Role == RoleAdmin {
		return true
	}

	return m.Permissions[permission]
}

// DefaultPermissions returns the permission set stored for a new member with role r.
func DefaultPermissions(r Role) map[Permission]bool {
	perms := make(map[Permission]bool, len(KnownPermissions))
	for _, p := range KnownPermissions {
		perms[p] = r == RoleOwner || r == RoleAdmin
	}
	return perms
}
