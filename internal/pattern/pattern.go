// Package pattern holds the read-only, indexed collection of named Life
// patterns the host supplies. Once constructed a Set is never
// mutated and may be shared freely.
package pattern

import "github.com/octolife/octolife/internal/life"

// Pattern is an immutable named shape, centered on the origin.
type Pattern struct {
	Name    string
	Offsets []life.Cell
}

// Set is a read-only indexed collection of Patterns.
type Set struct {
	patterns []Pattern
}

// NewSet builds a Set from host-supplied patterns. The patterns are not
// copied; callers must not mutate them after handing them to NewSet.
func NewSet(patterns []Pattern) *Set {
	return &Set{patterns: patterns}
}

// Count returns the number of patterns in the set.
func (s *Set) Count() int {
	return len(s.patterns)
}

// GetName returns the name of pattern i.
func (s *Set) GetName(i int) string {
	return s.patterns[i].Name
}

// GetUnits returns the offsets of pattern i.
func (s *Set) GetUnits(i int) []life.Cell {
	return s.patterns[i].Offsets
}

// GetSize returns the number of cells in pattern i.
func (s *Set) GetSize(i int) int {
	return len(s.patterns[i].Offsets)
}
