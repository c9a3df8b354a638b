package systems

import (
	"github.com/ojrac/opensimplex-go"
)

// NoiseProfile generates a smooth synthetic displacement field
// u(x, y) = amplitude · noise(x/scale, y/scale) with noise in [-1, 1].
type NoiseProfile struct {
	noise     opensimplex.Noise
	amplitude float64
	scale     float64
}

// NewNoiseProfile creates a seeded profile. A zero amplitude yields a flat field.
func NewNoiseProfile(seed int64, amplitude, scale float64) *NoiseProfile {
	return &NoiseProfile{
		noise:     opensimplex.NewNormalized(seed),
		amplitude: amplitude,
		scale:     scale,
	}
}

// At returns the displacement at (x, y).
func (p *NoiseProfile) At(x, y float64) float64 {
	if p.amplitude == 0 {
		return 0
	}
	// NewNormalized returns values in [0, 1); recenter to [-1, 1).
	n := 2*p.noise.Eval2(x/p.scale, y/p.scale) - 1
	return p.amplitude * n
}
