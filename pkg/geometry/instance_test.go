package geometry

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func unitSphereGroup(t *testing.T) *ShapeGroup {
	t.Helper()
	group, err := NewShapeGroup("sphere", NewSphere(core.NewVec3(0, 0, 0), 1))
	if err != nil {
		t.Fatalf("NewShapeGroup() error = %v", err)
	}
	return group
}

func TestNewInstance_Errors(t *testing.T) {
	group := unitSphereGroup(t)

	tests := []struct {
		name  string
		group *ShapeGroup
		xf    core.Transform
	}{
		{"nil group", nil, core.Identity()},
		{"zero scale", group, core.Scale(core.NewVec3(1, 0, 1))},
		{"zero transform", group, core.Transform{}},
		{"projective", group, core.FromMatrix(mgl64.Perspective(1, 1, 0.1, 10))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := NewInstance(tt.group, tt.xf)
			if !errors.Is(err, core.ErrInvalidArgument) {
				t.Errorf("NewInstance() error = %v, want ErrInvalidArgument", err)
			}
			if inst != nil {
				t.Error("Expected nil instance on error")
			}
		})
	}

	if group.References() != 0 {
		t.Errorf("Expected failed constructions not to retain the group, got %d references", group.References())
	}
}

func TestInstance_Counts(t *testing.T) {
	group := threeSphereGroup(t)
	inst, err := NewInstance(group, core.Translate(core.NewVec3(0, 5, 0)))
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}

	if !group.IsBuilt() {
		t.Error("Expected instance construction to build the group")
	}
	if got := inst.PrimitiveCount(); got != 0 {
		t.Errorf("PrimitiveCount() = %d, want 0", got)
	}
	if got := inst.EffectivePrimitiveCount(); got != 3 {
		t.Errorf("EffectivePrimitiveCount() = %d, want 3", got)
	}
}

func TestInstance_BoundingBox(t *testing.T) {
	group := unitSphereGroup(t)

	tests := []struct {
		name string
		xf   core.Transform
		want core.AABB
	}{
		{
			name: "scale then translate",
			xf:   core.Compose(core.UniformScale(2), core.Translate(core.NewVec3(5, 0, 0))),
			want: core.NewAABB(core.NewVec3(3, -2, -2), core.NewVec3(7, 2, 2)),
		},
		{
			name: "non-uniform scale",
			xf:   core.Scale(core.NewVec3(1, 3, 0.5)),
			want: core.NewAABB(core.NewVec3(-1, -3, -0.5), core.NewVec3(1, 3, 0.5)),
		},
		{
			name: "rotation grows the box",
			xf:   core.Rotate(core.NewVec3(0, 0, 1), math.Pi/4),
			want: core.NewAABB(core.NewVec3(-math.Sqrt2, -math.Sqrt2, -1), core.NewVec3(math.Sqrt2, math.Sqrt2, 1)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := NewInstance(group, tt.xf)
			if err != nil {
				t.Fatalf("NewInstance() error = %v", err)
			}
			if diff := cmp.Diff(inst.BoundingBox(), tt.want, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("BoundingBox() mismatch (-got +want):\n%s", diff)
			}
		})
	}
}

func TestInstance_EmptyGroup(t *testing.T) {
	group, err := NewShapeGroup("empty")
	if err != nil {
		t.Fatalf("NewShapeGroup() error = %v", err)
	}
	inst, err := NewInstance(group, core.Translate(core.NewVec3(1, 2, 3)))
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}

	if inst.BoundingBox().IsValid() {
		t.Errorf("Expected invalid bounding box, got %v", inst.BoundingBox())
	}
	if inst.Test(core.NewRay(core.NewVec3(1, 2, -5), core.NewVec3(0, 0, 1)), 0.001, 100) {
		t.Error("Expected instance of empty group to miss")
	}
	if inst.EffectivePrimitiveCount() != 0 || inst.SurfaceArea() != 0 {
		t.Errorf("Expected zero count and area, got %d and %f", inst.EffectivePrimitiveCount(), inst.SurfaceArea())
	}
}

func TestInstance_Hit(t *testing.T) {
	group := unitSphereGroup(t)
	xf := core.Compose(core.UniformScale(2), core.Translate(core.NewVec3(0, 0, 10)))
	inst, err := NewInstance(group, xf)
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}

	ray := core.NewRayAt(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, 1), 0.25)
	hit, ok := inst.Hit(ray, 0.001, 100)
	if !ok {
		t.Fatal("Expected hit, got miss")
	}

	// World sphere has radius 2 centered at z=10
	if math.Abs(hit.T-8) > 1e-9 {
		t.Errorf("Expected t=8, got %f", hit.T)
	}
	if !vecNear(hit.Point, core.NewVec3(0, 0, 8), 1e-9) {
		t.Errorf("Expected point (0,0,8), got %v", hit.Point)
	}
	if !vecNear(hit.Normal, core.NewVec3(0, 0, -1), 1e-9) {
		t.Errorf("Expected normal (0,0,-1), got %v", hit.Normal)
	}
	if !hit.FrontFace {
		t.Error("Expected front face hit")
	}
	if hit.Time != 0.25 {
		t.Errorf("Expected time 0.25, got %f", hit.Time)
	}
	if hit.Instance != inst {
		t.Errorf("Expected instance back-reference, got %v", hit.Instance)
	}
	if math.Abs(hit.Wi.Z-1) > 1e-9 {
		t.Errorf("Expected Wi along the shading normal, got %v", hit.Wi)
	}
	if !vecNear(hit.Frame.N, hit.Normal, 1e-12) {
		t.Errorf("Expected frame normal %v, got %v", hit.Normal, hit.Frame.N)
	}
}

func TestInstance_NormalUnderNonUniformScale(t *testing.T) {
	// A plane tilted 45 degrees, stretched along X: the normal must follow
	// the inverse-transpose, not the forward matrix
	mesh, err := NewTriangleMesh(
		[]core.Vec3{{X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: -1}},
		[]int{0, 1, 2, 0, 2, 3},
		nil,
	)
	if err != nil {
		t.Fatalf("NewTriangleMesh() error = %v", err)
	}
	group, err := NewShapeGroup("tilted", mesh)
	if err != nil {
		t.Fatalf("NewShapeGroup() error = %v", err)
	}
	inst, err := NewInstance(group, core.Scale(core.NewVec3(2, 1, 1)))
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}

	hit, ok := inst.Hit(core.NewRay(core.NewVec3(0.5, 0.2, -5), core.NewVec3(0, 0, 1)), 0.001, 100)
	if !ok {
		t.Fatal("Expected hit, got miss")
	}

	// World plane is z = x/2; its normal is (1, 0, -2)/√5 facing the ray
	want := core.NewVec3(1, 0, -2).Normalize()
	if !vecNear(hit.Normal, want, 1e-9) {
		t.Errorf("Expected normal %v, got %v", want, hit.Normal)
	}
	if math.Abs(hit.Point.Z-hit.Point.X/2) > 1e-9 {
		t.Errorf("Hit point %v is not on the world plane", hit.Point)
	}
	if math.Abs(hit.T-5.25) > 1e-9 {
		t.Errorf("Expected t=5.25, got %f", hit.T)
	}
}

// The equivalence law: an instance of an untransformed mesh must match the
// same mesh with the transform baked into its vertices
func TestInstance_MatchesTransformedMesh(t *testing.T) {
	vertices, faces := testSphereMesh(7, 16)

	local, err := NewTriangleMesh(vertices, faces, nil)
	if err != nil {
		t.Fatalf("NewTriangleMesh() error = %v", err)
	}
	group, err := NewShapeGroup("uv-sphere", local)
	if err != nil {
		t.Fatalf("NewShapeGroup() error = %v", err)
	}

	const tolerance = 2e-2
	approx := cmpopts.EquateApprox(0, tolerance)

	for _, scale := range []float64{1, 3} {
		t.Run(fmt.Sprintf("scale_%g", scale), func(t *testing.T) {
			xf := core.Compose(
				core.UniformScale(scale),
				core.Rotate(core.NewVec3(0, 1, 0), mgl64.DegToRad(30)),
				core.Translate(core.NewVec3(0, 1, 0)),
			)

			direct, err := NewTriangleMesh(vertices, faces, &TriangleMeshOptions{Transform: &xf})
			if err != nil {
				t.Fatalf("NewTriangleMesh() error = %v", err)
			}
			inst, err := NewInstance(group, xf)
			if err != nil {
				t.Fatalf("NewInstance() error = %v", err)
			}
			defer inst.Release()

			// Corner-transformed bounds are conservative
			instBox, directBox := inst.BoundingBox().Expand(1e-9), direct.BoundingBox()
			if !instBox.Contains(directBox.Min) || !instBox.Contains(directBox.Max) {
				t.Errorf("instance bounds %v do not contain direct bounds %v", instBox, directBox)
			}

			hits := 0
			const n = 21
			extent := 1.5 * scale
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					x := extent * (2*float64(i)/(n-1) - 1)
					y := 1 + extent*(2*float64(j)/(n-1)-1)
					ray := core.NewRayAt(core.NewVec3(x, y, -8), core.NewVec3(0, 0, 1), 0.5)

					want, wantOK := direct.Hit(ray, 1e-4, math.Inf(1))
					got, gotOK := inst.Hit(ray, 1e-4, math.Inf(1))

					if direct.Test(ray, 1e-4, math.Inf(1)) != inst.Test(ray, 1e-4, math.Inf(1)) {
						t.Errorf("(%d,%d): Test disagrees between direct and instanced", i, j)
					}
					if gotOK != inst.Test(ray, 1e-4, math.Inf(1)) {
						t.Errorf("(%d,%d): instance Test disagrees with Hit", i, j)
					}
					if gotOK != wantOK {
						t.Errorf("(%d,%d): instanced hit=%v, direct hit=%v", i, j, gotOK, wantOK)
						continue
					}
					if !gotOK {
						continue
					}
					hits++

					if want.Instance != nil {
						t.Errorf("(%d,%d): direct hit has an instance", i, j)
					}
					if got.Instance != inst {
						t.Errorf("(%d,%d): instanced hit has instance %v", i, j, got.Instance)
					}
					if got.PrimIndex != want.PrimIndex {
						t.Errorf("(%d,%d): prim index %d, want %d", i, j, got.PrimIndex, want.PrimIndex)
					}
					if math.Abs(got.T-want.T) > tolerance || got.Time != want.Time {
						t.Errorf("(%d,%d): t/time %f/%f, want %f/%f", i, j, got.T, got.Time, want.T, want.Time)
					}
					if diff := cmp.Diff(got.Point, want.Point, approx); diff != "" {
						t.Errorf("(%d,%d): point mismatch (-instanced +direct):\n%s", i, j, diff)
					}
					if diff := cmp.Diff(got.Wi, want.Wi, approx); diff != "" {
						t.Errorf("(%d,%d): wi mismatch (-instanced +direct):\n%s", i, j, diff)
					}
				}
			}
			if hits == 0 {
				t.Error("Expected the grid to hit the mesh")
			}
		})
	}
}

func TestInstance_SharedGroupIndependentPlacement(t *testing.T) {
	group := unitSphereGroup(t)
	left, err := NewInstance(group, core.Translate(core.NewVec3(-5, 0, 0)))
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}
	right, err := NewInstance(group, core.Compose(core.UniformScale(2), core.Translate(core.NewVec3(5, 0, 0))))
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}

	tests := []struct {
		name     string
		x        float64
		wantLeft bool
		wantRgt  bool
	}{
		{"through left", -5, true, false},
		{"through right", 5, false, true},
		{"right edge only covered by scaled copy", 6.5, false, true},
		{"between", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ray := core.NewRay(core.NewVec3(tt.x, 0, -10), core.NewVec3(0, 0, 1))
			if got := left.Test(ray, 0.001, 100); got != tt.wantLeft {
				t.Errorf("left.Test() = %v, want %v", got, tt.wantLeft)
			}
			if got := right.Test(ray, 0.001, 100); got != tt.wantRgt {
				t.Errorf("right.Test() = %v, want %v", got, tt.wantRgt)
			}
		})
	}

	if group.References() != 2 {
		t.Errorf("References() = %d, want 2", group.References())
	}
	left.Release()
	left.Release()
	if group.References() != 1 {
		t.Errorf("References() after double release = %d, want 1", group.References())
	}
	right.Release()
	if group.References() != 0 {
		t.Errorf("References() = %d, want 0", group.References())
	}
}

func TestInstance_SurfaceArea(t *testing.T) {
	triangle := NewTriangle(core.NewVec3(0, 0, 0), core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0))
	triangleGroup, err := NewShapeGroup("triangle", triangle)
	if err != nil {
		t.Fatalf("NewShapeGroup() error = %v", err)
	}
	sphereGroup := unitSphereGroup(t)

	// x' = x + y
	shearXY := mgl64.Ident4()
	shearXY.Set(0, 1, 1)

	tests := []struct {
		name  string
		group *ShapeGroup
		xf    core.Transform
		want  float64
	}{
		{"uniform sphere", sphereGroup, core.UniformScale(3), 9 * 4 * math.Pi},
		{"translated sphere", sphereGroup, core.Translate(core.NewVec3(3, 4, 5)), 4 * math.Pi},
		{"spheroid", sphereGroup, core.Scale(core.NewVec3(1, 1, 2)), spheroidArea(1, 2)},
		{"stretched triangle", triangleGroup, core.Scale(core.NewVec3(4, 1, 9)), 2},
		{"in-plane shear keeps area", triangleGroup, core.FromMatrix(shearXY), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := NewInstance(tt.group, tt.xf)
			if err != nil {
				t.Fatalf("NewInstance() error = %v", err)
			}
			if got := inst.SurfaceArea(); math.Abs(got-tt.want) > 1e-6*tt.want {
				t.Errorf("SurfaceArea() = %.9f, want %.9f", got, tt.want)
			}
			if tt.group.SurfaceArea() != 0 {
				t.Errorf("group SurfaceArea() = %f, want 0", tt.group.SurfaceArea())
			}
		})
	}
}

func TestAnimatedInstance(t *testing.T) {
	group := unitSphereGroup(t)
	motion, err := core.NewAnimatedTransform(
		core.Keyframe{Time: 0, Scale: core.NewVec3(1, 1, 1), Rotation: mgl64.QuatIdent()},
		core.Keyframe{Time: 1, Scale: core.NewVec3(1, 1, 1), Rotation: mgl64.QuatIdent(), Translation: core.NewVec3(10, 0, 0)},
	)
	if err != nil {
		t.Fatalf("NewAnimatedTransform() error = %v", err)
	}
	inst, err := NewAnimatedInstance(group, motion)
	if err != nil {
		t.Fatalf("NewAnimatedInstance() error = %v", err)
	}

	bbox := inst.BoundingBox()
	if diff := cmp.Diff(bbox, core.NewAABB(core.NewVec3(-1, -1, -1), core.NewVec3(11, 1, 1)), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("BoundingBox() mismatch (-got +want):\n%s", diff)
	}

	tests := []struct {
		time    float64
		wantHit bool
	}{
		{0, false},
		{0.5, true},
		{1, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("time_%g", tt.time), func(t *testing.T) {
			ray := core.NewRayAt(core.NewVec3(5, 0, -5), core.NewVec3(0, 0, 1), tt.time)
			hit, ok := inst.Hit(ray, 0.001, 100)
			if ok != tt.wantHit {
				t.Fatalf("Hit() = %v, want %v", ok, tt.wantHit)
			}
			if inst.Test(ray, 0.001, 100) != tt.wantHit {
				t.Error("Test() disagrees with Hit()")
			}
			if ok {
				if math.Abs(hit.T-4) > 1e-9 {
					t.Errorf("Expected t=4, got %f", hit.T)
				}
				if hit.Time != tt.time {
					t.Errorf("Expected time %g, got %g", tt.time, hit.Time)
				}
			}
		})
	}
}
