package auth

import "testing"

func TestParseRole(t *testing.T) {
	cases := map[string]struct {
		role Role
		ok   bool
	}{
		"player":  {RolePlayer, true},
		" Staff ": {RoleStaff, true},
		"admin":   {"", false},
		"":        {"", false},
	}
	for in, want := range cases {
		got, ok := ParseRole(in)
		if got != want.role || ok != want.ok {
			t.Fatalf("ParseRole(%q) = %q,%v want %q,%v", in, got, ok, want.role, want.ok)
		}
	}
}
