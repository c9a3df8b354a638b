package sim

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/freemesh/telemetry"
)

// parallelThreshold is the minimum point count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	candidates []int
}

// parallelState holds resources for parallel energy evaluation.
type parallelState struct {
	numWorkers int
	chunkSize  int
	scratches  []workerScratch
}

func newParallelState(workers, chunkSize int) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if chunkSize <= 0 {
		chunkSize = 64
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].candidates = make([]int, 0, 1024)
	}
	return &parallelState{
		numWorkers: workers,
		chunkSize:  chunkSize,
		scratches:  scratches,
	}
}

// computeChunk evaluates points [i0, i1) and appends their records.
// Only slots i0..i1-1 of the energy field are written.
func (s *Simulation) computeChunk(i0, i1 int, scratch *workerScratch, sink Sink) error {
	for i := i0; i < i1; i++ {
		w, candidates, err := s.kernel.EnergyDensity(i, scratch.candidates)
		scratch.candidates = candidates
		if err != nil {
			return err
		}
		s.energy[i] = w

		p := s.store.Position(i)
		if err := sink.Append(telemetry.Record{X: p.X, Y: p.Y, W: w}); err != nil {
			return err
		}
	}
	return nil
}

// computeParallel lets every worker pull chunks from a shared cursor until
// the index range is exhausted or a worker fails.
func (s *Simulation) computeParallel(ctx context.Context, sink Sink) error {
	n := len(s.energy)
	p := s.parallel
	chunk := int64(p.chunkSize)

	var cursor atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < p.numWorkers; w++ {
		scratch := &p.scratches[w]
		g.Go(func() error {
			for ctx.Err() == nil {
				start := cursor.Add(chunk) - chunk
				if start >= int64(n) {
					return nil
				}
				end := min(start+chunk, int64(n))
				if err := s.computeChunk(int(start), int(end), scratch, sink); err != nil {
					return err
				}
			}
			return ctx.Err()
		})
	}
	return g.Wait()
}
