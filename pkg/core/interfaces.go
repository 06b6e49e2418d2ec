package core

// Shape is the geometric query contract shared by primitives, shape groups
// and instances. A broad-phase structure depends only on this interface.
type Shape interface {
	// Hit returns the closest intersection with t in [tMin, tMax]
	Hit(ray Ray, tMin, tMax float64) (*SurfaceInteraction, bool)
	// Test reports whether any intersection exists with t in [tMin, tMax].
	// It must agree with Hit for the same arguments.
	Test(ray Ray, tMin, tMax float64) bool
	BoundingBox() AABB
	// PrimitiveCount is the number of primitives this shape stores
	PrimitiveCount() int
	// EffectivePrimitiveCount is the number of primitives visible in the world
	EffectivePrimitiveCount() int
	SurfaceArea() float64
}

// AreaTransformer is implemented by shapes that can report their surface
// area under the linear part of a transform, computed per primitive.
type AreaTransformer interface {
	TransformedSurfaceArea(t Transform) float64
}
