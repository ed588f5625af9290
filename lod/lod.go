// Package lod derives the table of detail sizes used to pick the geometry
// resolution of a terrain chunk, and maps a node depth to one of them.
package lod

import (
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// ErrTypeInvalidArgument is the error type returned when a manager is
	// configured with a value out of its valid range.
	ErrTypeInvalidArgument = "lod_invalid_argument"
)

// Manager holds the detail table derived from a base chunk size and the cap
// applied to the level index when selecting a detail.
//
// The zero value behaves as a manager with a base size of 1. Use New or
// SetBaseSize to derive a larger table.
type Manager struct {
	baseSize       int
	levels         []int
	activeMaxLevel int
}

// New returns a manager whose detail table is derived from the given base
// chunk size.
func New(baseSize int) (*Manager, error) {
	var m Manager
	if err := m.SetBaseSize(baseSize); err != nil {
		return nil, err
	}
	return &m, nil
}

// ComputeLevelsDescending returns every positive divisor of baseSize, sorted
// in strictly descending order. The last element is always 1.
func ComputeLevelsDescending(baseSize int) ([]int, error) {
	if baseSize < 1 {
		return nil, errors.New("base size must be positive").
			WithType(ErrTypeInvalidArgument).
			WithTag("base_size", baseSize)
	}

	var low, high []int
	for i := 1; i*i <= baseSize; i++ {
		if baseSize%i != 0 {
			continue
		}

		low = append(low, i)
		if j := baseSize / i; j != i {
			high = append(high, j)
		}
	}

	levels := make([]int, 0, len(low)+len(high))
	levels = append(levels, high...)
	levels = append(levels, low...)
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))
	return levels, nil
}

// SetBaseSize recomputes the detail table from the given base size and resets
// the active max level to the natural maximum. On error the manager is left
// untouched.
func (m *Manager) SetBaseSize(n int) error {
	levels, err := ComputeLevelsDescending(n)
	if err != nil {
		return err
	}

	m.baseSize = n
	m.levels = levels
	m.activeMaxLevel = len(levels) - 1
	return nil
}

// SetActiveMaxLevel caps the level index used by ComputeLOD. It fails when n
// is outside [0, MaxLevel()].
func (m *Manager) SetActiveMaxLevel(n int) error {
	if n < 0 || n > m.MaxLevel() {
		return errors.New("active max level out of range").
			WithType(ErrTypeInvalidArgument).
			WithTag("level", n).
			WithTag("max_level", m.MaxLevel())
	}

	m.activeMaxLevel = n
	return nil
}

// ComputeLOD returns the detail size for a node at nodeDepth in a tree whose
// deepest leaf is at treeHeight.
//
// The level index is the number of depth levels between the node and the
// tree height, capped by the active max level.
func (m *Manager) ComputeLOD(nodeDepth, treeHeight int) int {
	if len(m.levels) == 0 {
		return 1
	}

	idx := treeHeight - nodeDepth
	if idx > m.activeMaxLevel {
		idx = m.activeMaxLevel
	}
	if idx < 0 {
		idx = 0
	}
	if last := len(m.levels) - 1; idx > last {
		idx = last
	}
	return m.levels[idx]
}

// BaseSize returns the chunk size the detail table is derived from.
func (m *Manager) BaseSize() int {
	if m.baseSize == 0 {
		return 1
	}
	return m.baseSize
}

// Levels returns a copy of the detail table.
func (m *Manager) Levels() []int {
	if len(m.levels) == 0 {
		return []int{1}
	}

	levels := make([]int, len(m.levels))
	copy(levels, m.levels)
	return levels
}

// ActiveMaxLevel returns the current level index cap.
func (m *Manager) ActiveMaxLevel() int {
	return m.activeMaxLevel
}

// MaxLevel returns the natural maximum level index, len(Levels())-1.
func (m *Manager) MaxLevel() int {
	if len(m.levels) == 0 {
		return 0
	}
	return len(m.levels) - 1
}
