// Package membudget sizes the transpose's in-memory group matrix against
// available system RAM.
package membudget

import (
	"github.com/eunmann/tabular-index/pkg/sysmem"
)

// DefaultFraction is the share of detected RAM the group matrix may use.
const DefaultFraction = 0.5

// Budget bounds the bytes a column-group matrix may occupy.
type Budget struct {
	totalBytes uint64
	reliable   bool
}

// FromSystemRAM returns a budget of DefaultFraction of detected RAM, or of
// the sysmem fallback when detection is unreliable.
func FromSystemRAM() *Budget {
	total, reliable := sysmem.TotalRAM()
	return &Budget{
		totalBytes: uint64(float64(total) * DefaultFraction),
		reliable:   reliable,
	}
}

// FixedBytes returns a budget with an explicit byte limit.
func FixedBytes(n uint64) *Budget {
	return &Budget{totalBytes: n, reliable: true}
}

// TotalBytes returns the budget limit.
func (b *Budget) TotalBytes() uint64 {
	return b.totalBytes
}

// Reliable reports whether the limit derives from detected RAM or an
// explicit FixedBytes figure, rather than the sysmem fallback.
func (b *Budget) Reliable() bool {
	return b.reliable
}

// MaxGroupColumns clamps a requested column-group width so that the group
// matrix (cellBytes per cell, rowCount rows per column) fits the budget.
// At least one column is always allowed.
func (b *Budget) MaxGroupColumns(requested, rowCount, cellBytes int) int {
	if requested < 1 {
		requested = 1
	}
	if rowCount <= 0 || cellBytes <= 0 {
		return requested
	}
	perColumn := uint64(rowCount) * uint64(cellBytes)
	limit := b.totalBytes / perColumn
	if limit < 1 {
		limit = 1
	}
	if uint64(requested) > limit {
		return int(limit)
	}
	return requested
}
