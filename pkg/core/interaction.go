package core

// SurfaceInteraction contains information about a ray-surface intersection
type SurfaceInteraction struct {
	T         float64 // Parameter t along the ray
	Point     Vec3    // Point of intersection
	Normal    Vec3    // Geometric normal, facing against the incoming ray
	FrontFace bool    // Whether ray hit the front face
	Frame     Frame   // Shading frame, Frame.N == Normal
	UV        Vec2    // Surface parameterization at the hit
	DpDu      Vec3    // Partial derivative of the position along u
	DpDv      Vec3    // Partial derivative of the position along v
	Wi        Vec3    // Incident direction (towards the ray origin) in the shading frame
	Time      float64 // Ray time

	// PrimIndex indexes the primitive inside the shape that produced the hit.
	// For shape groups it is the group-wide contiguous index.
	PrimIndex int
	// Shape is the primitive container that was hit
	Shape Shape
	// Instance is the instance the ray passed through, nil for direct hits
	Instance Shape
}

// SetFaceNormal sets the normal vector and determines front/back face
func (si *SurfaceInteraction) SetFaceNormal(ray Ray, outwardNormal Vec3) {
	si.FrontFace = ray.Direction.Dot(outwardNormal) < 0
	if si.FrontFace {
		si.Normal = outwardNormal
	} else {
		si.Normal = outwardNormal.Multiply(-1)
	}
}

// ComputeShading builds the shading frame from Normal and DpDu and
// records the incident direction of ray in that frame.
func (si *SurfaceInteraction) ComputeShading(ray Ray) {
	si.Frame = NewFrameFromTangent(si.Normal, si.DpDu)
	si.Wi = si.Frame.ToLocal(ray.Direction.Negate().Normalize())
	si.Time = ray.Time
}

// ToWorld converts a shading-frame direction to world space
func (si *SurfaceInteraction) ToWorld(v Vec3) Vec3 {
	return si.Frame.ToWorld(v)
}

// ToLocal converts a world-space direction to the shading frame
func (si *SurfaceInteraction) ToLocal(v Vec3) Vec3 {
	return si.Frame.ToLocal(v)
}
