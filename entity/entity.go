// Package entity models the account/project/person hierarchy that signals
// attach to. Parents are stored; children are always a derived view over
// parent_id, never authoritative state.
package entity

import (
	"time"
)

// Type classifies an entity node
type Type string

const (
	TypeAccount Type = "account"
	TypeProject Type = "project"
	TypePerson  Type = "person"
)

// IsValidType returns true if the string names a known entity type
func IsValidType(s string) bool {
	switch Type(s) {
	case TypeAccount, TypeProject, TypePerson:
		return true
	default:
		return false
	}
}

// MaxHierarchyDepth bounds the parent chain. The entity service enforces
// this at creation time; the propagation engine additionally guards against
// cycles at traversal time.
const MaxHierarchyDepth = 16

// Entity is a node in the hierarchy
type Entity struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"` // empty = root
	CreatedAt time.Time `json:"created_at"`
}
