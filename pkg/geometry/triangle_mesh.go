package geometry

import (
	"fmt"

	"github.com/df07/go-instancing/pkg/core"
)

// TriangleMesh represents a collection of triangles with efficient ray intersection
// It uses an internal BVH (Bounding Volume Hierarchy) for fast intersection tests
type TriangleMesh struct {
	triangles []*Triangle // Individual triangles, indexed by primitive index
	bvh       *BVH        // BVH for fast intersection
	bbox      core.AABB   // Overall bounding box
}

// TriangleMeshOptions contains optional parameters for triangle mesh creation
type TriangleMeshOptions struct {
	Normals   []core.Vec3     // Optional custom normals (one per triangle)
	Transform *core.Transform // Optional transform baked into vertices and normals
}

// NewTriangleMesh creates a new triangle mesh from vertices and face indices
// vertices: array of 3D points
// faces: array of triangle indices (each group of 3 indices forms a triangle)
// options: optional parameters (can be nil for basic mesh)
func NewTriangleMesh(vertices []core.Vec3, faces []int, options *TriangleMeshOptions) (*TriangleMesh, error) {
	if len(faces)%3 != 0 {
		return nil, fmt.Errorf("face indices must be a multiple of 3, got %d: %w", len(faces), core.ErrInvalidArgument)
	}

	numTriangles := len(faces) / 3

	// Validate options if provided
	if options != nil {
		if options.Normals != nil && len(options.Normals) != numTriangles {
			return nil, fmt.Errorf("got %d normals for %d triangles: %w", len(options.Normals), numTriangles, core.ErrInvalidArgument)
		}
		if options.Transform != nil && !options.Transform.IsInvertible() {
			return nil, fmt.Errorf("mesh transform is not invertible: %w", core.ErrInvalidArgument)
		}
	}

	// Bake the transform into a copy of the vertices
	workingVertices := vertices
	var transform *core.Transform
	if options != nil && options.Transform != nil {
		transform = options.Transform
		workingVertices = make([]core.Vec3, len(vertices))
		for i, vertex := range vertices {
			workingVertices[i] = transform.Point(vertex)
		}
	}

	mesh := &TriangleMesh{
		triangles: make([]*Triangle, numTriangles),
		bbox:      core.EmptyAABB(),
	}
	shapes := make([]core.Shape, numTriangles)

	for i := 0; i < numTriangles; i++ {
		i0 := faces[i*3]
		i1 := faces[i*3+1]
		i2 := faces[i*3+2]

		if i0 >= len(workingVertices) || i1 >= len(workingVertices) || i2 >= len(workingVertices) ||
			i0 < 0 || i1 < 0 || i2 < 0 {
			return nil, fmt.Errorf("face %d index out of bounds (%d, %d, %d) for %d vertices: %w",
				i, i0, i1, i2, len(workingVertices), core.ErrInvalidArgument)
		}

		var triangle *Triangle
		if options != nil && options.Normals != nil {
			normal := options.Normals[i]
			if transform != nil {
				normal = transform.Normal(normal)
			}
			triangle = NewTriangleWithNormal(workingVertices[i0], workingVertices[i1], workingVertices[i2], normal)
		} else {
			triangle = NewTriangle(workingVertices[i0], workingVertices[i1], workingVertices[i2])
		}
		triangle.index = i
		triangle.owner = mesh

		mesh.triangles[i] = triangle
		shapes[i] = triangle
		mesh.bbox = mesh.bbox.Union(triangle.BoundingBox())
	}

	mesh.bvh = NewBVH(shapes)
	return mesh, nil
}

// Hit tests if a ray intersects with any triangle in the mesh
func (tm *TriangleMesh) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	return tm.bvh.Hit(ray, tMin, tMax)
}

// Test reports whether any triangle in the mesh is hit
func (tm *TriangleMesh) Test(ray core.Ray, tMin, tMax float64) bool {
	return tm.bvh.Test(ray, tMin, tMax)
}

// BoundingBox returns the axis-aligned bounding box for the entire mesh
func (tm *TriangleMesh) BoundingBox() core.AABB {
	return tm.bbox
}

func (tm *TriangleMesh) PrimitiveCount() int          { return len(tm.triangles) }
func (tm *TriangleMesh) EffectivePrimitiveCount() int { return len(tm.triangles) }

// SurfaceArea returns the summed area of all triangles
func (tm *TriangleMesh) SurfaceArea() float64 {
	area := 0.0
	for _, triangle := range tm.triangles {
		area += triangle.SurfaceArea()
	}
	return area
}

// TransformedSurfaceArea returns the summed area of all triangles under t
func (tm *TriangleMesh) TransformedSurfaceArea(t core.Transform) float64 {
	area := 0.0
	for _, triangle := range tm.triangles {
		area += triangle.TransformedSurfaceArea(t)
	}
	return area
}

// GetTriangleCount returns the number of triangles in this mesh
func (tm *TriangleMesh) GetTriangleCount() int {
	return len(tm.triangles)
}

// GetTriangles returns the individual triangles (for debugging or special operations)
func (tm *TriangleMesh) GetTriangles() []*Triangle {
	return tm.triangles
}
