package geometry

import (
	"math"

	"github.com/df07/go-instancing/pkg/core"
)

// Padding applied to the bounding box along flat axes
const quadBoxPadding = 1e-4

// Quad represents a rectangular surface defined by a corner and two edge vectors
type Quad struct {
	Corner core.Vec3 // One corner of the quad
	U      core.Vec3 // First edge vector
	V      core.Vec3 // Second edge vector
	Normal core.Vec3 // Normal vector (computed from U × V)
	D      float64   // Plane equation constant: ax + by + cz = d
	W      core.Vec3 // Cached cross product for barycentric coordinates

	// Set when the quad is a face of a box
	index int
	owner core.Shape
}

// NewQuad creates a new quad from a corner point and two edge vectors
func NewQuad(corner, u, v core.Vec3) *Quad {
	// Calculate normal from cross product of edge vectors
	cross := u.Cross(v)
	normal := cross.Normalize()

	// Calculate plane equation constant: d = normal · corner
	d := normal.Dot(corner)

	// w = normal / (normal · (u × v)), used for the planar coordinates
	w := normal.Multiply(1.0 / normal.Dot(cross))

	return &Quad{
		Corner: corner,
		U:      u,
		V:      v,
		Normal: normal,
		D:      d,
		W:      w,
	}
}

// intersect returns the ray parameter and planar coordinates of the hit
func (q *Quad) intersect(ray core.Ray, tMin, tMax float64) (t, alpha, beta float64, ok bool) {
	// Calculate denominator: dot product of ray direction and quad normal
	denominator := ray.Direction.Dot(q.Normal)

	// If denominator is close to zero, ray is parallel to quad (no intersection)
	if math.Abs(denominator) < 1e-8 {
		return 0, 0, 0, false
	}

	t = (q.D - ray.Origin.Dot(q.Normal)) / denominator
	if t < tMin || t > tMax {
		return 0, 0, 0, false
	}

	// Check if hit point is within the quad bounds
	hitVector := ray.At(t).Subtract(q.Corner)
	alpha = q.W.Dot(hitVector.Cross(q.V))
	beta = q.W.Dot(q.U.Cross(hitVector))
	if alpha < 0 || alpha > 1 || beta < 0 || beta > 1 {
		return 0, 0, 0, false
	}
	return t, alpha, beta, true
}

// Hit tests if a ray intersects with the quad
func (q *Quad) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	t, alpha, beta, ok := q.intersect(ray, tMin, tMax)
	if !ok {
		return nil, false
	}

	si := &core.SurfaceInteraction{
		T:         t,
		Point:     ray.At(t),
		UV:        core.NewVec2(alpha, beta),
		DpDu:      q.U,
		DpDv:      q.V,
		PrimIndex: q.index,
		Shape:     q.owner,
	}
	if si.Shape == nil {
		si.Shape = q
	}

	si.SetFaceNormal(ray, q.Normal)
	si.ComputeShading(ray)
	return si, true
}

// Test reports whether the ray intersects the quad
func (q *Quad) Test(ray core.Ray, tMin, tMax float64) bool {
	_, _, _, ok := q.intersect(ray, tMin, tMax)
	return ok
}

// BoundingBox returns the axis-aligned bounding box for this quad, padded
// along any axis where it has no extent
func (q *Quad) BoundingBox() core.AABB {
	box := core.NewAABBFromPoints(
		q.Corner,
		q.Corner.Add(q.U),
		q.Corner.Add(q.V),
		q.Corner.Add(q.U).Add(q.V),
	)
	pad := func(min, max *float64) {
		if *max-*min < quadBoxPadding {
			*min -= quadBoxPadding / 2
			*max += quadBoxPadding / 2
		}
	}
	pad(&box.Min.X, &box.Max.X)
	pad(&box.Min.Y, &box.Max.Y)
	pad(&box.Min.Z, &box.Max.Z)
	return box
}

func (q *Quad) PrimitiveCount() int          { return 1 }
func (q *Quad) EffectivePrimitiveCount() int { return 1 }

// SurfaceArea returns |U × V|
func (q *Quad) SurfaceArea() float64 {
	return q.U.Cross(q.V).Length()
}

// TransformedSurfaceArea returns the area after mapping both edges through t
func (q *Quad) TransformedSurfaceArea(t core.Transform) float64 {
	return t.Vector(q.U).Cross(t.Vector(q.V)).Length()
}
