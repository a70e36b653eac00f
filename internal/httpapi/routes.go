package httpapi

import (
	"fmt"
	"sort"

	"github.com/PetoAdam/homenavi/readings-service/pkg/roles"
)

// defaultCeilings is the least privileged role each gated endpoint admits.
// Endpoints not listed here are public.
var defaultCeilings = map[string]roles.Role{
	"get_me":                   roles.Student,
	"get_account":              roles.Teacher,
	"create_account":           roles.Teacher,
	"create_accounts":          roles.Teacher,
	"replace_account":          roles.Teacher,
	"patch_accounts":           roles.Teacher,
	"delete_inactive_accounts": roles.Teacher,
	"delete_account":           roles.Teacher,

	"get_reading":         roles.Student,
	"create_reading":      roles.Teacher,
	"create_readings":     roles.Student,
	"replace_reading":     roles.Teacher,
	"patch_readings":      roles.Teacher,
	"patch_precipitation": roles.Teacher,
	"delete_reading":      roles.Teacher,
	"delete_readings":     roles.Admin,

	"report_max_temperature":   roles.Student,
	"report_hour":              roles.Student,
	"report_max_precipitation": roles.Student,
}

// ResolveCeilings applies configured overrides. An unknown endpoint or role
// name is a startup error; nothing is ever left open by a typo.
func ResolveCeilings(overrides map[string]string) (map[string]roles.Role, error) {
	out := make(map[string]roles.Role, len(defaultCeilings))
	for name, role := range defaultCeilings {
		out[name] = role
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := defaultCeilings[name]; !ok {
			return nil, fmt.Errorf("routes.%s: no such endpoint", name)
		}
		role, err := roles.Parse(overrides[name])
		if err != nil {
			return nil, fmt.Errorf("routes.%s: %w", name, err)
		}
		out[name] = role
	}
	return out, nil
}
