package systems

import "math"

// BulkModulus returns K = E / (3 - 6ν).
func BulkModulus(youngs, poisson float64) float64 {
	return youngs / (3 - 6*poisson)
}

// Micromodulus returns the bond constant c = 6K / (π δ³) shared by every point.
func Micromodulus(bulk, horizon float64) float64 {
	return 6 * bulk / (math.Pi * horizon * horizon * horizon)
}

// FamilyMicromodulus returns the per-point constant c_i = 18K / Σ V_j,
// where the sum runs over the family of point i.
func FamilyMicromodulus(bulk, familyVolume float64) float64 {
	return 18 * bulk / familyVolume
}
