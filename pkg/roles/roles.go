package roles

import (
	"fmt"
	"strings"
)

// Role is an access level. Lower ordinal = wider access.
type Role int

// Role constants defining the hierarchy
const (
	Admin   Role = iota // Full system administrator
	Teacher             // Manages readings and student accounts
	Student             // Read access and batch uploads
)

var roleNames = map[Role]string{
	Admin:   "Admin",
	Teacher: "Teacher",
	Student: "Student",
}

// All returns every known role ordered by ordinal.
func All() []Role {
	return []Role{Admin, Teacher, Student}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Parse converts a stored role name into a Role. Names are case-sensitive.
func Parse(name string) (Role, error) {
	known := make([]string, 0, len(roleNames))
	for _, r := range All() {
		if r.String() == name {
			return r, nil
		}
		known = append(known, r.String())
	}
	return 0, fmt.Errorf("unknown role %q, expected one of %s", name, strings.Join(known, ", "))
}

// Satisfies is a ceiling check: the account's ordinal must not exceed the
// ordinal declared by the endpoint. An endpoint declaring Student admits
// every role, one declaring Admin admits only Admin.
func Satisfies(actual, required Role) bool {
	if !actual.Valid() || !required.Valid() {
		return false
	}
	return actual <= required
}

// SatisfiesName is Satisfies for a role name read from the store.
// Unknown names never match.
func SatisfiesName(actual string, required Role) bool {
	r, err := Parse(actual)
	if err != nil {
		return false
	}
	return Satisfies(r, required)
}
