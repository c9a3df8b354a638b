package sim

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/freemesh/components"
	"github.com/pthm-cable/freemesh/systems"
)

// pointWorld holds the ECS view of the point cloud during construction.
type pointWorld struct {
	world *ecs.World

	pointMapper *ecs.Map4[
		components.Position,
		components.Volume,
		components.Displacement,
		components.GridIndex,
	]
	pointFilter *ecs.Filter4[
		components.Position,
		components.Volume,
		components.Displacement,
		components.GridIndex,
	]
	dispMap *ecs.Map1[components.Displacement]

	// entities[index] is the entity of grid point index
	entities []ecs.Entity
}

func newPointWorld() *pointWorld {
	world := ecs.NewWorld()
	return &pointWorld{
		world: world,
		pointMapper: ecs.NewMap4[
			components.Position,
			components.Volume,
			components.Displacement,
			components.GridIndex,
		](world),
		pointFilter: ecs.NewFilter4[
			components.Position,
			components.Volume,
			components.Displacement,
			components.GridIndex,
		](world),
		dispMap: ecs.NewMap1[components.Displacement](world),
	}
}

// spawnGrid creates one entity per grid point at (x0 + i·dx, y0 + j·dy)
// with index i·ny + j.
func (pw *pointWorld) spawnGrid(nx, ny int, x0, y0, dx, dy, volume float64) {
	pw.entities = make([]ecs.Entity, 0, nx*ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			pos := components.Position{X: x0 + dx*float64(i), Y: y0 + dy*float64(j)}
			vol := components.Volume{V: volume}
			disp := components.Displacement{}
			idx := components.GridIndex{Index: i*ny + j, I: i, J: j}
			pw.entities = append(pw.entities, pw.pointMapper.NewEntity(&pos, &vol, &disp, &idx))
		}
	}
}

// applyProfile sets every displacement from a synthetic profile.
func (pw *pointWorld) applyProfile(profile *systems.NoiseProfile) {
	query := pw.pointFilter.Query()
	for query.Next() {
		pos, _, disp, _ := query.Get()
		disp.U = profile.At(pos.X, pos.Y)
	}
}

// setDisplacement overrides the displacement of a single point.
func (pw *pointWorld) setDisplacement(index int, u float64) {
	pw.dispMap.Get(pw.entities[index]).U = u
}

// snapshot copies the world into a dense store ordered by grid index.
func (pw *pointWorld) snapshot() (*systems.Store, error) {
	n := len(pw.entities)
	positions := make([]r2.Vec, n)
	volumes := make([]float64, n)
	displacements := make([]float64, n)

	query := pw.pointFilter.Query()
	for query.Next() {
		pos, vol, disp, idx := query.Get()
		positions[idx.Index] = pos.Vec()
		volumes[idx.Index] = vol.V
		displacements[idx.Index] = disp.U
	}

	return systems.NewStore(positions, volumes, displacements)
}
