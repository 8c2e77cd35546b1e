package provision

// RoleMapping maps identity provider group identifiers to application roles.
// Supplied as configuration so provider-specific group IDs never live in
// code.
type RoleMapping map[string]Role

// Resolve derives a role from the user's group memberships. The resolution
// is a pure function: the highest-privilege role among mapped groups wins,
// and an empty or unmapped group set yields RoleUser. Elevated privilege is
// never granted implicitly.
func (m RoleMapping) Resolve(groups []string) Role {
	role := RoleUser
	for _, group := range groups {
		mapped, ok := m[group]
		if !ok || !mapped.Valid() {
			continue
		}
		if roleRank[mapped] > roleRank[role] {
			role = mapped
		}
	}
	return role
}
