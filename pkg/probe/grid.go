package probe

import "github.com/df07/go-instancing/pkg/core"

// Grid describes an N x N sweep of parallel rays. Origins lie on the plane
// z = Z and cover [-Scale, Scale) around Center in x and y.
type Grid struct {
	N         int
	Scale     float64
	Center    core.Vec3 // Only X and Y are used
	Z         float64
	Direction core.Vec3 // Defaults to +z
	Time      float64
}

// DefaultGrid returns the 21 x 21 sweep at z = -8 centered on center,
// spanning +-scale
func DefaultGrid(scale float64, center core.Vec3) Grid {
	return Grid{N: 21, Scale: scale, Center: center, Z: -8}
}

// Rays returns the grid rays in x-major order
func (g Grid) Rays() []core.Ray {
	if g.N <= 0 {
		return nil
	}
	dir := g.Direction
	if dir.LengthSquared() == 0 {
		dir = core.NewVec3(0, 0, 1)
	}

	invN := 1.0 / float64(g.N)
	rays := make([]core.Ray, 0, g.N*g.N)
	for x := 0; x < g.N; x++ {
		for y := 0; y < g.N; y++ {
			origin := core.NewVec3(
				g.Center.X+g.Scale*(2*float64(x)*invN-1),
				g.Center.Y+g.Scale*(2*float64(y)*invN-1),
				g.Z,
			)
			rays = append(rays, core.NewRayAt(origin, dir, g.Time))
		}
	}
	return rays
}
