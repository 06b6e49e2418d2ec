package geometry

import (
	"math"

	"github.com/df07/go-instancing/pkg/core"
	"gonum.org/v1/gonum/integrate/quad"
)

// Cylinder represents a finite cylinder shape (open-ended, no caps)
type Cylinder struct {
	BaseCenter core.Vec3
	TopCenter  core.Vec3
	Radius     float64

	// Cached derived values
	axis   core.Vec3 // Unit vector from base to top
	height float64   // Distance between base and top
	right  core.Vec3 // phi = 0 direction
	up     core.Vec3 // phi = π/2 direction, right × up = axis
}

// NewCylinder creates a new cylinder
func NewCylinder(baseCenter, topCenter core.Vec3, radius float64) *Cylinder {
	axisVector := topCenter.Subtract(baseCenter)
	height := axisVector.Length()
	frame := core.NewFrame(axisVector.Normalize())

	return &Cylinder{
		BaseCenter: baseCenter,
		TopCenter:  topCenter,
		Radius:     radius,
		axis:       frame.N,
		height:     height,
		right:      frame.S,
		up:         frame.T,
	}
}

// BoundingBox returns the axis-aligned bounding box for this cylinder. Each
// axis extends past the end caps by Radius*sqrt(1-a²) for axis component a.
func (c *Cylinder) BoundingBox() core.AABB {
	extent := func(a float64) float64 {
		return c.Radius * math.Sqrt(math.Max(0, 1-a*a))
	}
	e := core.NewVec3(extent(c.axis.X), extent(c.axis.Y), extent(c.axis.Z))
	ends := core.NewAABBFromPoints(c.BaseCenter, c.TopCenter)
	return core.NewAABB(ends.Min.Subtract(e), ends.Max.Add(e))
}

// intersect returns the nearest root inside [tMin, tMax] that lies between
// the end caps, and its height along the axis
func (c *Cylinder) intersect(ray core.Ray, tMin, tMax float64) (t, h float64, ok bool) {
	// Vector from ray origin to base center
	delta := ray.Origin.Subtract(c.BaseCenter)

	dv := ray.Direction.Dot(c.axis)
	deltaV := delta.Dot(c.axis)

	// Quadratic equation coefficients: at² + bt + cc = 0
	a := ray.Direction.LengthSquared() - dv*dv
	b := 2.0 * (delta.Dot(ray.Direction) - deltaV*dv)
	cc := delta.LengthSquared() - deltaV*deltaV - c.Radius*c.Radius

	// Ray is parallel to the cylinder axis and can only graze the wall
	if math.Abs(a) < 1e-12 {
		return 0, 0, false
	}

	discriminant := b*b - 4*a*cc
	if discriminant < 0 {
		return 0, 0, false
	}
	sqrtD := math.Sqrt(discriminant)

	for _, root := range [2]float64{(-b - sqrtD) / (2 * a), (-b + sqrtD) / (2 * a)} {
		if root < tMin || root > tMax {
			continue
		}
		height := deltaV + root*dv
		if height < 0 || height > c.height {
			continue
		}
		return root, height, true
	}
	return 0, 0, false
}

// Hit tests if a ray intersects with the cylinder. UV is (phi/2π, h/height).
func (c *Cylinder) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	t, h, ok := c.intersect(ray, tMin, tMax)
	if !ok {
		return nil, false
	}

	si := &core.SurfaceInteraction{
		T:     t,
		Point: ray.At(t),
		Shape: c,
	}

	// Normal points radially outward from the axis
	axisPoint := c.BaseCenter.Add(c.axis.Multiply(h))
	outwardNormal := si.Point.Subtract(axisPoint).Normalize()
	si.SetFaceNormal(ray, outwardNormal)

	phi := math.Atan2(outwardNormal.Dot(c.up), outwardNormal.Dot(c.right))
	if phi < 0 {
		phi += 2 * math.Pi
	}
	si.UV = core.NewVec2(phi/(2*math.Pi), h/c.height)
	si.DpDu = c.axis.Cross(outwardNormal).Multiply(2 * math.Pi * c.Radius)
	si.DpDv = c.axis.Multiply(c.height)

	si.ComputeShading(ray)
	return si, true
}

// Test reports whether the ray intersects the cylinder wall
func (c *Cylinder) Test(ray core.Ray, tMin, tMax float64) bool {
	_, _, ok := c.intersect(ray, tMin, tMax)
	return ok
}

func (c *Cylinder) PrimitiveCount() int          { return 1 }
func (c *Cylinder) EffectivePrimitiveCount() int { return 1 }

// SurfaceArea returns the area of the open wall, 2πrh
func (c *Cylinder) SurfaceArea() float64 {
	return 2 * math.Pi * c.Radius * c.height
}

// TransformedSurfaceArea returns the wall area under the linear part of t.
// The area element |M dp/dphi × M dp/dh| does not depend on h, so a single
// integral over phi suffices.
func (c *Cylinder) TransformedSurfaceArea(t core.Transform) float64 {
	if scale2, ok := similarityScale2(t.Linear()); ok {
		return c.SurfaceArea() * scale2
	}

	axis := t.Vector(c.axis)
	ring := quad.Fixed(func(phi float64) float64 {
		sinPhi, cosPhi := math.Sincos(phi)
		tangent := c.up.Multiply(cosPhi).Subtract(c.right.Multiply(sinPhi))
		return t.Vector(tangent).Cross(axis).Length()
	}, 0, 2*math.Pi, sphereAreaQuadraturePoints, quad.Legendre{}, 0)
	return c.Radius * c.height * ring
}
