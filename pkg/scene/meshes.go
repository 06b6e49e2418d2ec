package scene

import (
	"fmt"
	"math"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/df07/go-instancing/pkg/geometry"
)

// UVSphereGeometry returns the vertices and faces of a unit sphere centered
// at the origin, tessellated into latitude rings and longitude segments.
// Faces wind counter-clockwise when viewed from outside.
func UVSphereGeometry(rings, segments int) ([]core.Vec3, []int, error) {
	if rings < 2 || segments < 3 {
		return nil, nil, fmt.Errorf("uv sphere needs at least 2 rings and 3 segments, got %d and %d: %w",
			rings, segments, core.ErrInvalidArgument)
	}

	vertices := make([]core.Vec3, 0, 2+(rings-1)*segments)
	vertices = append(vertices, core.NewVec3(0, 1, 0))
	for r := 1; r < rings; r++ {
		theta := math.Pi * float64(r) / float64(rings)
		sinTheta, cosTheta := math.Sincos(theta)
		for s := 0; s < segments; s++ {
			phi := 2 * math.Pi * float64(s) / float64(segments)
			sinPhi, cosPhi := math.Sincos(phi)
			vertices = append(vertices, core.NewVec3(sinTheta*cosPhi, cosTheta, sinTheta*sinPhi))
		}
	}
	bottom := len(vertices)
	vertices = append(vertices, core.NewVec3(0, -1, 0))

	ringVertex := func(r, s int) int {
		return 1 + (r-1)*segments + s%segments
	}

	faces := make([]int, 0, 6*segments*(rings-1))
	for s := 0; s < segments; s++ {
		faces = append(faces, 0, ringVertex(1, s+1), ringVertex(1, s))
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			a, b := ringVertex(r, s), ringVertex(r, s+1)
			c, d := ringVertex(r+1, s), ringVertex(r+1, s+1)
			faces = append(faces, a, b, c, b, d, c)
		}
	}
	for s := 0; s < segments; s++ {
		faces = append(faces, ringVertex(rings-1, s), ringVertex(rings-1, s+1), bottom)
	}

	return vertices, faces, nil
}

// NewUVSphereMesh builds a unit UV sphere mesh. Use options.Transform to
// place and size it.
func NewUVSphereMesh(rings, segments int, options *geometry.TriangleMeshOptions) (*geometry.TriangleMesh, error) {
	vertices, faces, err := UVSphereGeometry(rings, segments)
	if err != nil {
		return nil, err
	}
	return geometry.NewTriangleMesh(vertices, faces, options)
}

// IcosahedronGeometry returns a regular icosahedron inscribed in the unit
// sphere: 12 vertices and 20 faces
func IcosahedronGeometry() ([]core.Vec3, []int) {
	phi := (1.0 + math.Sqrt(5.0)) / 2.0

	raw := []core.Vec3{
		{X: -1, Y: phi, Z: 0}, {X: 1, Y: phi, Z: 0}, {X: -1, Y: -phi, Z: 0}, {X: 1, Y: -phi, Z: 0},
		{X: 0, Y: -1, Z: phi}, {X: 0, Y: 1, Z: phi}, {X: 0, Y: -1, Z: -phi}, {X: 0, Y: 1, Z: -phi},
		{X: phi, Y: 0, Z: -1}, {X: phi, Y: 0, Z: 1}, {X: -phi, Y: 0, Z: -1}, {X: -phi, Y: 0, Z: 1},
	}
	vertices := make([]core.Vec3, len(raw))
	for i, v := range raw {
		vertices[i] = v.Normalize()
	}

	faces := []int{
		// 5 faces around vertex 0
		0, 11, 5, 0, 5, 1, 0, 1, 7, 0, 7, 10, 0, 10, 11,
		// 5 adjacent faces
		1, 5, 9, 5, 11, 4, 11, 10, 2, 10, 7, 6, 7, 1, 8,
		// 5 faces around vertex 3
		3, 9, 4, 3, 4, 2, 3, 2, 6, 3, 6, 8, 3, 8, 9,
		// 5 adjacent faces
		4, 9, 5, 2, 4, 11, 6, 2, 10, 8, 6, 7, 9, 8, 1,
	}

	return vertices, faces
}

// NewIcosahedronMesh builds a unit icosahedron mesh
func NewIcosahedronMesh(options *geometry.TriangleMeshOptions) (*geometry.TriangleMesh, error) {
	vertices, faces := IcosahedronGeometry()
	return geometry.NewTriangleMesh(vertices, faces, options)
}
