package access

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a capability level with a strict total order. Higher values carry
// every capability of the levels below them.
type Role int

const (
	// NoAccess is the zero value returned when no grant covers an entity.
	NoAccess Role = iota
	RoleGuest
	RoleMember
	RoleManager
	RoleAdministrator
	RoleOwner
)

var roleNames = map[Role]string{
	RoleGuest:         "guest",
	RoleMember:        "member",
	RoleManager:       "manager",
	RoleAdministrator: "administrator",
	RoleOwner:         "owner",
}

var rolesByName = map[string]Role{
	"guest":         RoleGuest,
	"member":        RoleMember,
	"manager":       RoleManager,
	"administrator": RoleAdministrator,
	"owner":         RoleOwner,
}

// ParseRole maps a role name onto the fixed enumeration.
func ParseRole(name string) (Role, error) {
	role, ok := rolesByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return NoAccess, fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	return role, nil
}

// Valid reports whether the role is one of the defined levels.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast compares two roles by the total order.
func (r Role) AtLeast(min Role) bool { return r >= min }

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "no_access"
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	role, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = role
	return nil
}
