package scene

import (
	"fmt"
	"math"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/df07/go-instancing/pkg/geometry"
	"github.com/go-gl/mathgl/mgl64"
)

// MeshGroupID is the group id used by the single-mesh presets
const MeshGroupID = "mesh"

// NewSphereGroupScene creates a group of three touching unit spheres and
// places it three times: unchanged, lifted and enlarged, and moving along x
// over the shutter interval [0, 1]
func NewSphereGroupScene() (*Scene, error) {
	s := New()
	_, err := s.AddShapeGroup("spheres",
		geometry.NewSphere(core.NewVec3(-2, 0, 0), 1),
		geometry.NewSphere(core.NewVec3(0, 0, 0), 1),
		geometry.NewSphere(core.NewVec3(2, 0, 0), 1),
	)
	if err != nil {
		return nil, err
	}

	if _, err := s.AddInstance("spheres", core.Identity()); err != nil {
		return nil, err
	}
	lifted := core.Compose(core.UniformScale(1.5), core.Translate(core.NewVec3(0, 4, 0)))
	if _, err := s.AddInstance("spheres", lifted); err != nil {
		return nil, err
	}

	motion, err := core.NewAnimatedTransform(
		core.Keyframe{Time: 0, Scale: core.NewVec3(1, 1, 1), Rotation: mgl64.QuatIdent(), Translation: core.NewVec3(0, -4, 0)},
		core.Keyframe{Time: 1, Scale: core.NewVec3(1, 1, 1), Rotation: mgl64.QuatIdent(), Translation: core.NewVec3(2, -4, 0)},
	)
	if err != nil {
		return nil, err
	}
	if _, err := s.AddAnimatedInstance("spheres", motion); err != nil {
		return nil, err
	}

	return s, s.Preprocess()
}

// NewInstancedMeshScene places the mesh once through an instance of a group
// holding it in object space
func NewInstancedMeshScene(vertices []core.Vec3, faces []int, toWorld core.Transform) (*Scene, error) {
	mesh, err := geometry.NewTriangleMesh(vertices, faces, nil)
	if err != nil {
		return nil, err
	}

	s := New()
	if _, err := s.AddShapeGroup(MeshGroupID, mesh); err != nil {
		return nil, err
	}
	if _, err := s.AddInstance(MeshGroupID, toWorld); err != nil {
		return nil, err
	}
	return s, s.Preprocess()
}

// NewDirectMeshScene places the mesh with toWorld baked into its vertices.
// It is the reference that NewInstancedMeshScene must agree with.
func NewDirectMeshScene(vertices []core.Vec3, faces []int, toWorld core.Transform) (*Scene, error) {
	mesh, err := geometry.NewTriangleMesh(vertices, faces, &geometry.TriangleMeshOptions{Transform: &toWorld})
	if err != nil {
		return nil, err
	}

	s := New()
	s.AddShape(mesh)
	return s, s.Preprocess()
}

// NewInstanceGridScene places an n x n grid of icosahedron instances on the
// z=0 plane, each with its own rotation and scale, all sharing one group
func NewInstanceGridScene(n int) (*Scene, error) {
	if n < 1 {
		return nil, fmt.Errorf("instance grid needs n >= 1, got %d: %w", n, core.ErrInvalidArgument)
	}

	mesh, err := NewIcosahedronMesh(nil)
	if err != nil {
		return nil, err
	}

	s := New()
	if _, err := s.AddShapeGroup("icosahedron", mesh); err != nil {
		return nil, err
	}

	const spacing = 2.5
	offset := spacing * float64(n-1) / 2
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k := float64(i*n + j)
			toWorld := core.Compose(
				core.Scale(core.NewVec3(1, 0.6+0.4*math.Abs(math.Sin(k)), 1)),
				core.Rotate(core.NewVec3(0, 1, 0), 0.3*k),
				core.Translate(core.NewVec3(float64(j)*spacing-offset, float64(i)*spacing-offset, 0)),
			)
			if _, err := s.AddInstance("icosahedron", toWorld); err != nil {
				return nil, err
			}
		}
	}
	return s, s.Preprocess()
}

// NewPrimitiveGroupScene groups one of each primitive kind (sphere, box,
// quad, disc, cylinder, triangle) and places the group twice, the second
// copy squashed and rotated
func NewPrimitiveGroupScene() (*Scene, error) {
	s := New()
	_, err := s.AddShapeGroup("primitives",
		geometry.NewSphere(core.NewVec3(-3, 0, 0), 0.75),
		geometry.NewAxisAlignedBox(core.NewVec3(-1, 0, 0), core.NewVec3(0.5, 0.5, 0.5)),
		geometry.NewQuad(core.NewVec3(0.25, -0.5, 0), core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0)),
		geometry.NewDisc(core.NewVec3(2, 0, 0), core.NewVec3(0, 0, -1), 0.5),
		geometry.NewCylinder(core.NewVec3(3, -0.5, 0), core.NewVec3(3, 0.5, 0), 0.4),
		geometry.NewTriangle(core.NewVec3(4, -0.5, 0), core.NewVec3(5, -0.5, 0), core.NewVec3(4.5, 0.5, 0)),
	)
	if err != nil {
		return nil, err
	}

	if _, err := s.AddInstance("primitives", core.Identity()); err != nil {
		return nil, err
	}
	squashed := core.Compose(
		core.Scale(core.NewVec3(1, 0.5, 1)),
		core.Rotate(core.NewVec3(1, 0, 0), math.Pi/8),
		core.Translate(core.NewVec3(0, 3, 0)),
	)
	if _, err := s.AddInstance("primitives", squashed); err != nil {
		return nil, err
	}
	return s, s.Preprocess()
}
