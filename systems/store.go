// Package systems provides the peridynamic kernel: field storage, bond
// quantities, neighbor enumeration and per-point energy density.
package systems

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrFieldLength is returned when positions, volumes and displacements disagree in length.
var ErrFieldLength = errors.New("field length mismatch")

// Store holds the immutable point cloud read by the energy kernel.
// All three fields share the same indexing.
type Store struct {
	positions     []r2.Vec
	volumes       []float64
	displacements []float64
}

// NewStore creates a store from explicit fields. The slices are copied so
// later changes by the caller cannot reach a running kernel.
func NewStore(positions []r2.Vec, volumes, displacements []float64) (*Store, error) {
	if len(volumes) != len(positions) || len(displacements) != len(positions) {
		return nil, fmt.Errorf("%w: %d positions, %d volumes, %d displacements",
			ErrFieldLength, len(positions), len(volumes), len(displacements))
	}
	return &Store{
		positions:     append([]r2.Vec(nil), positions...),
		volumes:       append([]float64(nil), volumes...),
		displacements: append([]float64(nil), displacements...),
	}, nil
}

// Len returns the number of points N.
func (s *Store) Len() int {
	return len(s.positions)
}

// Position returns the reference position of point i.
func (s *Store) Position(i int) r2.Vec {
	return s.positions[i]
}

// Volume returns the volume of point i.
func (s *Store) Volume(i int) float64 {
	return s.volumes[i]
}

// Displacement returns the scalar displacement of point i.
func (s *Store) Displacement(i int) float64 {
	return s.displacements[i]
}

// Bounds returns the corners of the axis-aligned box enclosing every point.
// An empty store returns two zero vectors.
func (s *Store) Bounds() (lo, hi r2.Vec) {
	if len(s.positions) == 0 {
		return lo, hi
	}
	lo, hi = s.positions[0], s.positions[0]
	for _, p := range s.positions[1:] {
		lo.X = min(lo.X, p.X)
		lo.Y = min(lo.Y, p.Y)
		hi.X = max(hi.X, p.X)
		hi.Y = max(hi.Y, p.Y)
	}
	return lo, hi
}
