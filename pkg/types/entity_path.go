package types

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// EntityPath identifies a logical stream of data, e.g. "/world/robot/camera".
// Paths are stored in normalized form: a leading slash, no trailing slash,
// no empty parts. The root path is "/".
type EntityPath string

// RootEntityPath is the root of the entity hierarchy.
const RootEntityPath EntityPath = "/"

// ParseEntityPath normalizes s into an EntityPath.
func ParseEntityPath(s string) EntityPath {
	return NewEntityPath(strings.Split(s, "/")...)
}

// NewEntityPath builds an EntityPath from its parts. Empty parts are dropped.
func NewEntityPath(parts ...string) EntityPath {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return RootEntityPath
	}
	return EntityPath(b.String())
}

// String returns the normalized path.
func (p EntityPath) String() string {
	if p == "" {
		return string(RootEntityPath)
	}
	return string(p)
}

// Parts returns the path components, root has none.
func (p EntityPath) Parts() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(strings.TrimPrefix(string(p), "/"), "/")
}

// IsRoot reports whether p is the root path.
func (p EntityPath) IsRoot() bool {
	return p == "" || p == RootEntityPath
}

// Parent returns the parent path. The parent of the root is the root.
func (p EntityPath) Parent() EntityPath {
	parts := p.Parts()
	if len(parts) <= 1 {
		return RootEntityPath
	}
	return NewEntityPath(parts[:len(parts)-1]...)
}

// Join appends parts to p.
func (p EntityPath) Join(parts ...string) EntityPath {
	return NewEntityPath(append(p.Parts(), parts...)...)
}

// IsDescendantOf reports whether p lies strictly below ancestor.
func (p EntityPath) IsDescendantOf(ancestor EntityPath) bool {
	if p.IsRoot() {
		return false
	}
	if ancestor.IsRoot() {
		return true
	}
	return strings.HasPrefix(string(p), string(ancestor)+"/")
}

// StartsWith reports whether p equals prefix or is one of its descendants.
func (p EntityPath) StartsWith(prefix EntityPath) bool {
	return p.String() == prefix.String() || p.IsDescendantOf(prefix)
}

// Hash returns a stable 64-bit hash of the normalized path.
func (p EntityPath) Hash() uint64 {
	return xxhash.Sum64String(p.String())
}
