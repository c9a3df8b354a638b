package components

import "gonum.org/v1/gonum/spatial/r2"

// Position represents a material point's reference-configuration location.
type Position struct {
	X, Y float64
}

// Vec returns the position as a gonum plane vector.
func (p Position) Vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// GridIndex places a point in the dense field arrays.
// Index = I*NY + J; the inner loop runs along y.
type GridIndex struct {
	Index int
	I, J  int
}
