package geometry

import (
	"github.com/df07/go-instancing/pkg/core"
)

// Triangle represents a single triangle defined by three vertices
type Triangle struct {
	V0, V1, V2 core.Vec3 // The three vertices
	normal     core.Vec3 // Cached normal vector
	bbox       core.AABB // Cached bounding box

	// Set when the triangle belongs to a mesh
	index int
	owner core.Shape
}

// NewTriangle creates a new triangle from three vertices
func NewTriangle(v0, v1, v2 core.Vec3) *Triangle {
	t := &Triangle{
		V0: v0,
		V1: v1,
		V2: v2,
	}

	// Precompute normal and bounding box for efficiency
	t.computeNormal()
	t.computeBoundingBox()

	return t
}

// NewTriangleWithNormal creates a new triangle from three vertices with a custom normal
func NewTriangleWithNormal(v0, v1, v2 core.Vec3, normal core.Vec3) *Triangle {
	t := &Triangle{
		V0:     v0,
		V1:     v1,
		V2:     v2,
		normal: normal.Normalize(), // Ensure the normal is normalized
	}

	// Only compute bounding box, normal is provided
	t.computeBoundingBox()

	return t
}

// computeNormal calculates and caches the triangle's normal vector
func (t *Triangle) computeNormal() {
	// Calculate two edge vectors
	edge1 := t.V1.Subtract(t.V0)
	edge2 := t.V2.Subtract(t.V0)

	// Normal is the cross product of the two edges
	t.normal = edge1.Cross(edge2).Normalize()
}

// computeBoundingBox calculates and caches the triangle's bounding box
func (t *Triangle) computeBoundingBox() {
	t.bbox = core.NewAABBFromPoints(t.V0, t.V1, t.V2)
}

// intersect runs Möller-Trumbore and returns the ray parameter and the
// barycentric coordinates (u, v) of the hit
func (t *Triangle) intersect(ray core.Ray, tMin, tMax float64) (tHit, u, v float64, ok bool) {
	const epsilon = 1e-8
	// Barycentric slack so both triangles sharing an edge report a hit on it
	const edgeSlack = 1e-12

	// Calculate two edge vectors
	edge1 := t.V1.Subtract(t.V0)
	edge2 := t.V2.Subtract(t.V0)

	// Calculate determinant
	h := ray.Direction.Cross(edge2)
	a := edge1.Dot(h)

	// If determinant is near zero, ray lies in plane of triangle
	if a > -epsilon && a < epsilon {
		return 0, 0, 0, false
	}

	f := 1.0 / a
	s := ray.Origin.Subtract(t.V0)
	u = f * s.Dot(h)

	// Check if intersection is outside triangle
	if u < -edgeSlack || u > 1.0+edgeSlack {
		return 0, 0, 0, false
	}

	q := s.Cross(edge1)
	v = f * ray.Direction.Dot(q)

	// Check if intersection is outside triangle
	if v < -edgeSlack || u+v > 1.0+edgeSlack {
		return 0, 0, 0, false
	}

	tHit = f * edge2.Dot(q)

	// Check if intersection is within valid range
	if tHit < tMin || tHit > tMax {
		return 0, 0, 0, false
	}
	return tHit, u, v, true
}

// Hit tests if a ray intersects with the triangle using the Möller-Trumbore algorithm
func (t *Triangle) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	tHit, u, v, ok := t.intersect(ray, tMin, tMax)
	if !ok {
		return nil, false
	}

	si := &core.SurfaceInteraction{
		T:         tHit,
		Point:     ray.At(tHit),
		UV:        core.NewVec2(u, v),
		DpDu:      t.V1.Subtract(t.V0),
		DpDv:      t.V2.Subtract(t.V0),
		PrimIndex: t.index,
		Shape:     t.owner,
	}
	if si.Shape == nil {
		si.Shape = t
	}

	si.SetFaceNormal(ray, t.normal)
	si.ComputeShading(ray)
	return si, true
}

// Test reports whether the ray intersects the triangle
func (t *Triangle) Test(ray core.Ray, tMin, tMax float64) bool {
	_, _, _, ok := t.intersect(ray, tMin, tMax)
	return ok
}

// BoundingBox returns the axis-aligned bounding box for this triangle
func (t *Triangle) BoundingBox() core.AABB {
	return t.bbox
}

func (t *Triangle) PrimitiveCount() int          { return 1 }
func (t *Triangle) EffectivePrimitiveCount() int { return 1 }

// SurfaceArea returns half the magnitude of the edge cross product
func (t *Triangle) SurfaceArea() float64 {
	return 0.5 * t.V1.Subtract(t.V0).Cross(t.V2.Subtract(t.V0)).Length()
}

// TransformedSurfaceArea returns the area after mapping the edges through t
func (t *Triangle) TransformedSurfaceArea(tr core.Transform) float64 {
	e1 := tr.Vector(t.V1.Subtract(t.V0))
	e2 := tr.Vector(t.V2.Subtract(t.V0))
	return 0.5 * e1.Cross(e2).Length()
}
