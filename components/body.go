package components

// Volume is the quadrature volume carried by a material point.
type Volume struct {
	V float64
}

// Displacement is the scalar displacement of a material point.
type Displacement struct {
	U float64
}
