package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// BondLength returns the reference distance ξ between points i and j.
// The self bond has length 0.
func BondLength(s *Store, i, j int) float64 {
	if i == j {
		return 0
	}
	return r2.Norm(r2.Sub(s.positions[j], s.positions[i]))
}

// BondInput returns the bond length ξ_ij and the bond displacement η_ij = u_j - u_i.
func BondInput(s *Store, i, j int) (xi, eta float64) {
	return BondLength(s, i, j), s.displacements[j] - s.displacements[i]
}

// Weight is the influence function: 1 inside the closed horizon, 0 outside.
// Zero-length bonds (self or coincident points) are never in the family.
func Weight(xi, horizon float64) float64 {
	if xi > 0 && xi <= horizon {
		return 1
	}
	return 0
}

// Stretch returns s = |ξ + η| / |ξ|. Only call it for bonds with Weight 1.
func Stretch(xi, eta float64) float64 {
	return math.Abs(xi+eta) / math.Abs(xi)
}
