package roles

import (
	"strings"
	"testing"
)

func TestRoleOrdinals(t *testing.T) {
	tests := []struct {
		role     Role
		expected int
	}{
		{Admin, 0},
		{Teacher, 1},
		{Student, 2},
	}

	for _, test := range tests {
		if int(test.role) != test.expected {
			t.Errorf("ordinal(%s) = %d, want %d", test.role, int(test.role), test.expected)
		}
	}
}

func TestSatisfiesIsReflexive(t *testing.T) {
	for _, r := range All() {
		if !Satisfies(r, r) {
			t.Errorf("Satisfies(%s, %s) should be true", r, r)
		}
	}
}

func TestSatisfiesCeiling(t *testing.T) {
	tests := []struct {
		actual   Role
		required Role
		expected bool
	}{
		// Student endpoints admit everyone
		{Admin, Student, true},
		{Teacher, Student, true},
		{Student, Student, true},

		// Teacher endpoints admit Teacher and Admin
		{Admin, Teacher, true},
		{Teacher, Teacher, true},
		{Student, Teacher, false},

		// Admin endpoints admit only Admin
		{Admin, Admin, true},
		{Teacher, Admin, false},
		{Student, Admin, false},

		// Out of range ordinals fail closed
		{Role(7), Student, false},
		{Admin, Role(-1), false},
	}

	for _, test := range tests {
		result := Satisfies(test.actual, test.required)
		if result != test.expected {
			t.Errorf("Satisfies(%s, %s) = %t, want %t",
				test.actual, test.required, result, test.expected)
		}
	}
}

func TestSatisfiesNameFailsClosed(t *testing.T) {
	invalid := []string{"", "admin", "ADMIN", "Admin ", "Superuser"}
	for _, name := range invalid {
		if SatisfiesName(name, Student) {
			t.Errorf("SatisfiesName(%q, Student) should be false", name)
		}
	}
	if !SatisfiesName("Teacher", Teacher) {
		t.Error("SatisfiesName(Teacher, Teacher) should be true")
	}
}

func TestParse(t *testing.T) {
	for _, r := range All() {
		got, err := Parse(r.String())
		if err != nil {
			t.Fatalf("Parse(%s): %v", r, err)
		}
		if got != r {
			t.Errorf("Parse(%s) = %s", r, got)
		}
	}
	_, err := Parse("Janitor")
	if err == nil {
		t.Fatal("Parse(Janitor) should fail")
	}
	if !strings.Contains(err.Error(), "Admin, Teacher, Student") {
		t.Errorf("error should list known roles, got %q", err)
	}
}
