package systems

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFiniteEnergy is returned when a bond contribution or a point's
// energy density is NaN or infinite.
var ErrNonFiniteEnergy = errors.New("non-finite energy")

// MicromodulusMode selects how the bond constant c is obtained.
type MicromodulusMode uint8

const (
	MicromodulusHorizon      MicromodulusMode = iota // c = 6K / (π δ³)
	MicromodulusFamilyVolume                         // c_i = 18K / Σ V_j
)

// KernelParams holds the material and horizon constants of a run.
type KernelParams struct {
	Horizon      float64
	BulkModulus  float64
	Micromodulus float64 // Used in MicromodulusHorizon mode
	Mode         MicromodulusMode
}

// Kernel evaluates the bond-based linear elastic energy density
//
//	W_i = Σ_{j≠i, 0<ξ_ij≤δ} V_i · ½ · c · s_ij²
//
// over an immutable store. It is safe for concurrent use as long as every
// goroutine passes its own scratch buffer.
type Kernel struct {
	store     *Store
	neighbors NeighborFinder
	params    KernelParams
}

// NewKernel creates a kernel reading from the store through the given finder.
func NewKernel(s *Store, neighbors NeighborFinder, params KernelParams) *Kernel {
	return &Kernel{store: s, neighbors: neighbors, params: params}
}

// Store returns the store the kernel reads from.
func (k *Kernel) Store() *Store {
	return k.store
}

// EnergyDensity computes W_i. The scratch buffer receives the candidate list
// and is returned for reuse by the next call on the same goroutine.
func (k *Kernel) EnergyDensity(i int, scratch []int) (float64, []int, error) {
	scratch = k.neighbors.CandidatesInto(scratch[:0], i)

	c := k.params.Micromodulus
	if k.params.Mode == MicromodulusFamilyVolume {
		familyVolume := k.familyVolume(i, scratch)
		if familyVolume == 0 {
			return 0, scratch, nil
		}
		c = FamilyMicromodulus(k.params.BulkModulus, familyVolume)
	}

	vi := k.store.volumes[i]
	var w float64
	for _, j := range scratch {
		xi, eta := BondInput(k.store, i, j)
		if Weight(xi, k.params.Horizon) == 0 {
			continue
		}
		s := Stretch(xi, eta)
		contrib := vi * 0.5 * c * (s * s)
		if !isFinite(contrib) {
			return 0, scratch, fmt.Errorf("%w: bond (%d, %d) xi=%g eta=%g c=%g", ErrNonFiniteEnergy, i, j, xi, eta, c)
		}
		w += contrib
	}

	if !isFinite(w) {
		return 0, scratch, fmt.Errorf("%w: point %d accumulated %g", ErrNonFiniteEnergy, i, w)
	}
	return w, scratch, nil
}

// familyVolume sums V_j over the family of i.
func (k *Kernel) familyVolume(i int, candidates []int) float64 {
	var sum float64
	for _, j := range candidates {
		if Weight(BondLength(k.store, i, j), k.params.Horizon) == 1 {
			sum += k.store.volumes[j]
		}
	}
	return sum
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
