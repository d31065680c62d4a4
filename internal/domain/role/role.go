package role

import (
	"errors"
	"strings"
)

// Role is the account role reported by the backend profile.
// Only Admin, Analyst and Employee are recognized; any other value is kept
// as-is so callers can tell the user apart, but it never grants access.
type Role string

const (
	Admin    Role = "admin"
	Analyst  Role = "analyst"
	Employee Role = "employee"
)

var ErrUnknown = errors.New("unknown role")

// Parse normalizes a raw role string. ok is false for anything outside the
// fixed enumeration.
func Parse(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case Admin, Analyst, Employee:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

func All() []Role {
	return []Role{Admin, Analyst, Employee}
}

// Visitor has one method per role. Adding a role adds a method here, so every
// implementation stops compiling until it handles the new case.
type Visitor[T any] interface {
	Admin() T
	Analyst() T
	Employee() T
}

// Visit dispatches r to the matching visitor method. Unrecognized roles return
// ErrUnknown and the zero value; there is no default branch.
func Visit[T any](r Role, v Visitor[T]) (T, error) {
	switch r {
	case Admin:
		return v.Admin(), nil
	case Analyst:
		return v.Analyst(), nil
	case Employee:
		return v.Employee(), nil
	}

	var zero T
	return zero, ErrUnknown
}

// In reports whether r is one of allowed. An unrecognized role is never in
// any set, even if the set literally contains it.
func (r Role) In(allowed ...Role) bool {
	if !r.Valid() {
		return false
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}
