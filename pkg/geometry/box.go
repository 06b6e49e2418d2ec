package geometry

import (
	"github.com/df07/go-instancing/pkg/core"
)

// Box represents a rectangular box made up of 6 quads with optional rotation.
// Each face is one primitive; PrimIndex is the face index.
type Box struct {
	Center   core.Vec3 // Center point of the box
	Size     core.Vec3 // Half-extents along each axis
	Rotation core.Vec3 // Rotation angles in radians (X, Y, Z)
	faces    [6]*Quad  // The 6 quad faces
	bbox     core.AABB // Cached bounding box
}

// NewBox creates a new box with the given center, size and rotation
// Size represents half-extents (so a size of (1,1,1) creates a 2x2x2 box)
// Rotation is in radians around X, Y, Z axes (applied in that order)
func NewBox(center, size, rotation core.Vec3) *Box {
	box := &Box{
		Center:   center,
		Size:     size,
		Rotation: rotation,
	}

	// Generate the 6 faces
	box.generateFaces()

	return box
}

// NewAxisAlignedBox creates a new axis-aligned box (no rotation)
func NewAxisAlignedBox(center, size core.Vec3) *Box {
	return NewBox(center, size, core.NewVec3(0, 0, 0))
}

// generateFaces creates the 6 quad faces of the box
func (b *Box) generateFaces() {
	// Define the 8 corners of a unit box centered at origin
	corners := [8]core.Vec3{
		core.NewVec3(-1, -1, -1), // 0: left-bottom-back
		core.NewVec3(1, -1, -1),  // 1: right-bottom-back
		core.NewVec3(1, 1, -1),   // 2: right-top-back
		core.NewVec3(-1, 1, -1),  // 3: left-top-back
		core.NewVec3(-1, -1, 1),  // 4: left-bottom-front
		core.NewVec3(1, -1, 1),   // 5: right-bottom-front
		core.NewVec3(1, 1, 1),    // 6: right-top-front
		core.NewVec3(-1, 1, 1),   // 7: left-top-front
	}

	// Scale corners by size and apply rotation
	for i := range corners {
		// Scale by size
		corners[i] = core.NewVec3(
			corners[i].X*b.Size.X,
			corners[i].Y*b.Size.Y,
			corners[i].Z*b.Size.Z,
		)
		// Apply rotation
		corners[i] = corners[i].Rotate(b.Rotation)
		// Translate to center
		corners[i] = corners[i].Add(b.Center)
	}

	// Create the 6 faces using the transformed corners
	// Each face is defined by a corner and two edge vectors

	// Front face (Z+): 4-5-6-7
	b.faces[0] = NewQuad(
		corners[4],                      // corner
		corners[5].Subtract(corners[4]), // u vector (right)
		corners[7].Subtract(corners[4]), // v vector (up)
	)

	// Back face (Z-): 1-0-3-2
	b.faces[1] = NewQuad(
		corners[1],                      // corner
		corners[0].Subtract(corners[1]), // u vector (left)
		corners[2].Subtract(corners[1]), // v vector (up)
	)

	// Right face (X+): 5-1-2-6
	b.faces[2] = NewQuad(
		corners[5],                      // corner
		corners[1].Subtract(corners[5]), // u vector (back)
		corners[6].Subtract(corners[5]), // v vector (up)
	)

	// Left face (X-): 0-4-7-3
	b.faces[3] = NewQuad(
		corners[0],                      // corner
		corners[4].Subtract(corners[0]), // u vector (front)
		corners[3].Subtract(corners[0]), // v vector (up)
	)

	// Top face (Y+): 3-7-6-2
	b.faces[4] = NewQuad(
		corners[3],                      // corner
		corners[7].Subtract(corners[3]), // u vector (front)
		corners[2].Subtract(corners[3]), // v vector (right)
	)

	// Bottom face (Y-): 4-0-1-5
	b.faces[5] = NewQuad(
		corners[4],                      // corner
		corners[0].Subtract(corners[4]), // u vector (back)
		corners[5].Subtract(corners[4]), // v vector (right)
	)

	for i, face := range b.faces {
		face.index = i
		face.owner = b
	}

	// Calculate bounding box from all corners
	b.bbox = core.NewAABBFromPoints(corners[0], corners[1], corners[2], corners[3],
		corners[4], corners[5], corners[6], corners[7])
}

// Hit tests if a ray intersects with any face of the box
func (b *Box) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	var closestHit *core.SurfaceInteraction

	// Test intersection with all 6 faces; a hit on a shared edge goes to the lower face index
	for _, face := range b.faces {
		if hit, isHit := face.Hit(ray, tMin, hitLimit(closestHit, tMax)); isHit && closerHit(hit, closestHit) {
			closestHit = hit
		}
	}

	return closestHit, closestHit != nil
}

// Test reports whether any face of the box is hit
func (b *Box) Test(ray core.Ray, tMin, tMax float64) bool {
	for _, face := range b.faces {
		if face.Test(ray, tMin, tMax) {
			return true
		}
	}
	return false
}

// BoundingBox returns the axis-aligned bounding box for this box
func (b *Box) BoundingBox() core.AABB {
	return b.bbox
}

func (b *Box) PrimitiveCount() int          { return len(b.faces) }
func (b *Box) EffectivePrimitiveCount() int { return len(b.faces) }

// SurfaceArea returns the summed area of the six faces
func (b *Box) SurfaceArea() float64 {
	area := 0.0
	for _, face := range b.faces {
		area += face.SurfaceArea()
	}
	return area
}

// TransformedSurfaceArea returns the summed face areas under t
func (b *Box) TransformedSurfaceArea(t core.Transform) float64 {
	area := 0.0
	for _, face := range b.faces {
		area += face.TransformedSurfaceArea(t)
	}
	return area
}
