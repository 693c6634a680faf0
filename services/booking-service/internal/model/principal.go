package model

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller, passed explicitly into every engine operation.
type Principal struct {
	UserID string
	Name   string
	Role   Role
}

func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
