package geometry

import (
	"math"

	"github.com/df07/go-instancing/pkg/core"
)

// Disc represents a circular disc in 3D space
type Disc struct {
	Center core.Vec3 // Center of the disc
	Normal core.Vec3 // Normal vector (pointing "up" from the disc)
	Radius float64   // Radius of the disc
	Right  core.Vec3 // Right vector (perpendicular to normal)
	Up     core.Vec3 // Up vector (perpendicular to normal and right)
}

// NewDisc creates a new disc
func NewDisc(center, normal core.Vec3, radius float64) *Disc {
	frame := core.NewFrame(normal.Normalize())
	return &Disc{
		Center: center,
		Normal: frame.N,
		Radius: radius,
		Right:  frame.S,
		Up:     frame.T,
	}
}

func (d *Disc) intersect(ray core.Ray, tMin, tMax float64) (float64, bool) {
	denom := d.Normal.Dot(ray.Direction)
	if math.Abs(denom) < 1e-12 {
		return 0, false // Ray is parallel to disc
	}

	t := d.Normal.Dot(d.Center.Subtract(ray.Origin)) / denom
	if t < tMin || t > tMax {
		return 0, false
	}

	if ray.At(t).Subtract(d.Center).LengthSquared() > d.Radius*d.Radius {
		return 0, false // Outside disc
	}
	return t, true
}

// Hit implements the Shape interface. UV is (r/Radius, phi/2π) in the
// Right/Up basis.
func (d *Disc) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	t, ok := d.intersect(ray, tMin, tMax)
	if !ok {
		return nil, false
	}

	si := &core.SurfaceInteraction{
		T:     t,
		Point: ray.At(t),
		Shape: d,
	}
	si.SetFaceNormal(ray, d.Normal)

	local := si.Point.Subtract(d.Center)
	x, y := local.Dot(d.Right), local.Dot(d.Up)
	r := math.Hypot(x, y)
	phi := math.Atan2(y, x)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	si.UV = core.NewVec2(r/d.Radius, phi/(2*math.Pi))

	sinPhi, cosPhi := math.Sincos(phi)
	radial := d.Right.Multiply(cosPhi).Add(d.Up.Multiply(sinPhi))
	tangent := d.Up.Multiply(cosPhi).Subtract(d.Right.Multiply(sinPhi))
	si.DpDu = radial.Multiply(d.Radius)
	si.DpDv = tangent.Multiply(2 * math.Pi * r)

	si.ComputeShading(ray)
	return si, true
}

// Test reports whether the ray intersects the disc
func (d *Disc) Test(ray core.Ray, tMin, tMax float64) bool {
	_, ok := d.intersect(ray, tMin, tMax)
	return ok
}

// BoundingBox implements the Shape interface. The disc extends
// Radius*sqrt(1-n²) along each axis; flat axes are padded.
func (d *Disc) BoundingBox() core.AABB {
	extent := func(n float64) float64 {
		return math.Max(d.Radius*math.Sqrt(math.Max(0, 1-n*n)), quadBoxPadding)
	}
	e := core.NewVec3(extent(d.Normal.X), extent(d.Normal.Y), extent(d.Normal.Z))
	return core.NewAABB(d.Center.Subtract(e), d.Center.Add(e))
}

func (d *Disc) PrimitiveCount() int          { return 1 }
func (d *Disc) EffectivePrimitiveCount() int { return 1 }

// SurfaceArea returns πr²
func (d *Disc) SurfaceArea() float64 {
	return math.Pi * d.Radius * d.Radius
}

// TransformedSurfaceArea returns the area of the ellipse the disc maps to
// under the linear part of t
func (d *Disc) TransformedSurfaceArea(t core.Transform) float64 {
	return d.SurfaceArea() * t.Vector(d.Right).Cross(t.Vector(d.Up)).Length()
}
