package model

import (
	"fmt"
	"strings"
)

// Scope selects which hierarchy is browsed.
type Scope int

const (
	ScopeOwned Scope = iota
	ScopeShared
)

// Scopes lists every scope in display order.
var Scopes = []Scope{ScopeOwned, ScopeShared}

func (s Scope) String() string {
	if s == ScopeShared {
		return "shared"
	}
	return "owned"
}

// Title returns the label shown for the scope root.
func (s Scope) Title() string {
	if s == ScopeShared {
		return "Shared"
	}
	return "Root"
}

// ParseScope accepts "owned"/"mine" and "shared".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owned", "mine", "my", "":
		return ScopeOwned, nil
	case "shared":
		return ScopeShared, nil
	}
	return ScopeOwned, fmt.Errorf("unknown scope %q", s)
}

// ShareRole is the access level granted by a share.
type ShareRole int

const (
	RoleViewer ShareRole = iota
	RoleEditor
)

func (r ShareRole) String() string {
	if r == RoleEditor {
		return "EDITOR"
	}
	return "VIEWER"
}

// CanWrite returns true for roles allowed to modify shared items.
func (r ShareRole) CanWrite() bool {
	return r == RoleEditor
}

// ParseShareRole parses VIEWER or EDITOR, case-insensitively.
func ParseShareRole(s string) (ShareRole, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VIEWER":
		return RoleViewer, nil
	case "EDITOR":
		return RoleEditor, nil
	}
	return RoleViewer, fmt.Errorf("unknown share role %q", s)
}

// Identity is the signed-in user as reported by the item store.
type Identity struct {
	UserID     string `json:"userId"`
	ExternalID string `json:"clerkUserId"`
}
