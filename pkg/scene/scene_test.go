package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/df07/go-instancing/pkg/geometry"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestScene_AddShapeGroup_Errors(t *testing.T) {
	s := New()
	if _, err := s.AddShapeGroup("spheres", geometry.NewSphere(core.NewVec3(0, 0, 0), 1)); err != nil {
		t.Fatalf("AddShapeGroup() error = %v", err)
	}

	tests := []struct {
		name   string
		id     string
		shapes []core.Shape
	}{
		{"duplicate id", "spheres", []core.Shape{geometry.NewSphere(core.NewVec3(0, 0, 0), 1)}},
		{"empty id", "", nil},
		{"nil child", "broken", []core.Shape{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddShapeGroup(tt.id, tt.shapes...)
			if !errors.Is(err, core.ErrInvalidArgument) {
				t.Errorf("AddShapeGroup(%q) error = %v, want ErrInvalidArgument", tt.id, err)
			}
		})
	}

	if diff := cmp.Diff(s.ShapeGroupIDs(), []string{"spheres"}); diff != "" {
		t.Errorf("failed registrations must not be kept (-got +want):\n%s", diff)
	}
}

func TestScene_AddInstance_UnknownGroup(t *testing.T) {
	s := New()
	if _, err := s.AddInstance("missing", core.Identity()); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("AddInstance() error = %v, want ErrInvalidArgument", err)
	}
	if len(s.Shapes) != 0 {
		t.Errorf("Expected no shapes after failed instance, got %d", len(s.Shapes))
	}
}

func TestScene_UninstancedGroupIsInvisible(t *testing.T) {
	s := New()
	if _, err := s.AddShapeGroup("orphan", geometry.NewSphere(core.NewVec3(0, 0, 0), 1)); err != nil {
		t.Fatalf("AddShapeGroup() error = %v", err)
	}
	if err := s.Preprocess(); err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}

	ray := core.NewRay(core.NewVec3(0, 0, -5), core.NewVec3(0, 0, 1))
	if _, hit := s.Hit(ray, 0.001, math.Inf(1)); hit {
		t.Error("An uninstanced group must not be hit")
	}
	if s.Test(ray, 0.001, math.Inf(1)) {
		t.Error("An uninstanced group must not occlude")
	}
	if s.BoundingBox().IsValid() {
		t.Errorf("Expected an empty scene bounding box, got %v", s.BoundingBox())
	}
	if got := s.GetPrimitiveCount(); got != 0 {
		t.Errorf("GetPrimitiveCount() = %d, want 0", got)
	}
	if got := s.GetStoredPrimitiveCount(); got != 1 {
		t.Errorf("GetStoredPrimitiveCount() = %d, want 1", got)
	}
}

func TestScene_QueriesBeforePreprocess(t *testing.T) {
	s := New()
	s.AddShape(geometry.NewSphere(core.NewVec3(0, 0, 0), 1))

	ray := core.NewRay(core.NewVec3(0, 0, -5), core.NewVec3(0, 0, 1))
	if _, hit := s.Hit(ray, 0.001, math.Inf(1)); hit {
		t.Error("Hit before Preprocess should miss")
	}
	if err := s.Preprocess(); err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	if _, hit := s.Hit(ray, 0.001, math.Inf(1)); !hit {
		t.Error("Hit after Preprocess should hit")
	}
}

func TestSphereGroupScene(t *testing.T) {
	s, err := NewSphereGroupScene()
	if err != nil {
		t.Fatalf("NewSphereGroupScene() error = %v", err)
	}

	if got := s.GetPrimitiveCount(); got != 9 {
		t.Errorf("GetPrimitiveCount() = %d, want 9", got)
	}
	if got := s.GetStoredPrimitiveCount(); got != 3 {
		t.Errorf("GetStoredPrimitiveCount() = %d, want 3", got)
	}
	group, ok := s.ShapeGroup("spheres")
	if !ok {
		t.Fatal("Expected spheres group to be registered")
	}
	if got := group.References(); got != 3 {
		t.Errorf("References() = %d, want 3", got)
	}

	tests := []struct {
		name     string
		origin   core.Vec3
		time     float64
		hit      bool
		wantT    float64
		instance int
	}{
		{"identity instance", core.NewVec3(0, 0, -10), 0.5, true, 9, 0},
		{"lifted and scaled instance", core.NewVec3(0, 4, -10), 0, true, 8.5, 1},
		{"moving instance at shutter open", core.NewVec3(4, -4, -10), 0, false, 0, 0},
		{"moving instance at shutter close", core.NewVec3(4, -4, -10), 1, true, 9, 2},
		{"between instances", core.NewVec3(0, 2, -10), 0, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ray := core.NewRayAt(tt.origin, core.NewVec3(0, 0, 1), tt.time)
			hit, ok := s.Hit(ray, 0.001, math.Inf(1))
			if ok != tt.hit {
				t.Fatalf("Hit() = %v, want %v", ok, tt.hit)
			}
			if s.Test(ray, 0.001, math.Inf(1)) != tt.hit {
				t.Errorf("Test() disagrees with Hit()")
			}
			if !tt.hit {
				return
			}
			if math.Abs(hit.T-tt.wantT) > 1e-9 {
				t.Errorf("T = %v, want %v", hit.T, tt.wantT)
			}
			if hit.Instance != s.Instances()[tt.instance] {
				t.Errorf("Hit attributed to the wrong instance")
			}
			if hit.Time != tt.time {
				t.Errorf("Time = %v, want %v", hit.Time, tt.time)
			}
		})
	}

	s.Release()
	if got := group.References(); got != 0 {
		t.Errorf("References() after Release = %d, want 0", got)
	}
}

func TestInstancedMeshMatchesDirectMesh(t *testing.T) {
	vertices, faces := IcosahedronGeometry()
	toWorld := core.Compose(
		core.Scale(core.NewVec3(2, 1, 1.5)),
		core.Rotate(core.NewVec3(0, 1, 0), math.Pi/5),
		core.Translate(core.NewVec3(0.5, -0.25, 3)),
	)

	direct, err := NewDirectMeshScene(vertices, faces, toWorld)
	if err != nil {
		t.Fatalf("NewDirectMeshScene() error = %v", err)
	}
	instanced, err := NewInstancedMeshScene(vertices, faces, toWorld)
	if err != nil {
		t.Fatalf("NewInstancedMeshScene() error = %v", err)
	}

	if direct.GetPrimitiveCount() != instanced.GetPrimitiveCount() {
		t.Errorf("effective counts differ: direct %d, instanced %d",
			direct.GetPrimitiveCount(), instanced.GetPrimitiveCount())
	}

	approx := cmpopts.EquateApprox(0, 1e-9)
	hits := 0
	for i := -6; i <= 6; i++ {
		for j := -6; j <= 6; j++ {
			ray := core.NewRay(core.NewVec3(0.5+float64(i)*0.2, -0.25+float64(j)*0.2, -5), core.NewVec3(0, 0, 1))
			want, wantOK := direct.Hit(ray, 0.001, math.Inf(1))
			got, gotOK := instanced.Hit(ray, 0.001, math.Inf(1))
			if wantOK != gotOK {
				t.Fatalf("ray (%d,%d): direct hit %v, instanced hit %v", i, j, wantOK, gotOK)
			}
			if !wantOK {
				continue
			}
			hits++
			if got.PrimIndex != want.PrimIndex {
				t.Errorf("ray (%d,%d): PrimIndex = %d, want %d", i, j, got.PrimIndex, want.PrimIndex)
			}
			if diff := cmp.Diff(got.T, want.T, approx); diff != "" {
				t.Errorf("ray (%d,%d): T mismatch (-got +want):\n%s", i, j, diff)
			}
			if diff := cmp.Diff(got.Point, want.Point, approx); diff != "" {
				t.Errorf("ray (%d,%d): Point mismatch (-got +want):\n%s", i, j, diff)
			}
		}
	}
	if hits == 0 {
		t.Fatal("Expected some rays to hit the mesh")
	}
}

func TestInstancedMeshEdgeHitResolvesToLowestPrim(t *testing.T) {
	// This ray lands on a shared edge of the transformed icosahedron; both
	// paths must pick the lower-indexed triangle
	vertices, faces := IcosahedronGeometry()
	toWorld := core.Compose(
		core.Scale(core.NewVec3(2, 1, 1.5)),
		core.Rotate(core.NewVec3(0, 1, 0), math.Pi/5),
		core.Translate(core.NewVec3(0.5, -0.25, 3)),
	)
	ray := core.NewRay(core.NewVec3(1.5, -0.25, -5), core.NewVec3(0, 0, 1))

	direct, err := NewDirectMeshScene(vertices, faces, toWorld)
	if err != nil {
		t.Fatalf("NewDirectMeshScene() error = %v", err)
	}
	instanced, err := NewInstancedMeshScene(vertices, faces, toWorld)
	if err != nil {
		t.Fatalf("NewInstancedMeshScene() error = %v", err)
	}

	want, ok := direct.Hit(ray, 0.001, math.Inf(1))
	if !ok {
		t.Fatal("Expected direct hit")
	}
	got, ok := instanced.Hit(ray, 0.001, math.Inf(1))
	if !ok {
		t.Fatal("Expected instanced hit")
	}
	if got.PrimIndex != want.PrimIndex {
		t.Errorf("instanced PrimIndex = %d, direct PrimIndex = %d", got.PrimIndex, want.PrimIndex)
	}

	// No triangle at the same distance may carry a lower index
	mesh := direct.Shapes[0].(*geometry.TriangleMesh)
	for i, tri := range mesh.GetTriangles() {
		si, ok := tri.Hit(ray, 0.001, math.Inf(1))
		if ok && math.Abs(si.T-want.T) <= 1e-9*math.Max(1, want.T) && i < want.PrimIndex {
			t.Errorf("triangle %d ties at t=%f but prim %d was chosen", i, si.T, want.PrimIndex)
		}
	}
}

func TestInstanceGridScene(t *testing.T) {
	if _, err := NewInstanceGridScene(0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("NewInstanceGridScene(0) error = %v, want ErrInvalidArgument", err)
	}

	s, err := NewInstanceGridScene(3)
	if err != nil {
		t.Fatalf("NewInstanceGridScene() error = %v", err)
	}
	if got := len(s.Instances()); got != 9 {
		t.Errorf("Expected 9 instances, got %d", got)
	}
	if got := s.GetPrimitiveCount(); got != 180 {
		t.Errorf("GetPrimitiveCount() = %d, want 180", got)
	}
	if got := s.GetStoredPrimitiveCount(); got != 20 {
		t.Errorf("GetStoredPrimitiveCount() = %d, want 20", got)
	}

	// The center instance sits on the origin
	ray := core.NewRay(core.NewVec3(0, 0, -10), core.NewVec3(0, 0, 1))
	hit, ok := s.Hit(ray, 0.001, math.Inf(1))
	if !ok {
		t.Fatal("Expected the center ray to hit")
	}
	if hit.Instance != s.Instances()[4] {
		t.Error("Expected the center instance to be hit")
	}
	if hit.T < 9 || hit.T > 10 {
		t.Errorf("T = %v, want within [9, 10]", hit.T)
	}
}

// windsOutward reports whether every face of a mesh centered at the origin
// has its winding normal pointing away from the origin
func windsOutward(vertices []core.Vec3, faces []int) bool {
	for i := 0; i < len(faces); i += 3 {
		v0, v1, v2 := vertices[faces[i]], vertices[faces[i+1]], vertices[faces[i+2]]
		n := v1.Subtract(v0).Cross(v2.Subtract(v0))
		centroid := v0.Add(v1).Add(v2)
		if n.Dot(centroid) <= 0 {
			return false
		}
	}
	return true
}

func TestUVSphereGeometry(t *testing.T) {
	tests := []struct {
		rings, segments int
		wantVertices    int
		wantTriangles   int
	}{
		{2, 3, 5, 6},
		{4, 6, 20, 36},
		{8, 16, 114, 224},
	}

	for _, tt := range tests {
		vertices, faces, err := UVSphereGeometry(tt.rings, tt.segments)
		if err != nil {
			t.Fatalf("UVSphereGeometry(%d, %d) error = %v", tt.rings, tt.segments, err)
		}
		if len(vertices) != tt.wantVertices {
			t.Errorf("UVSphereGeometry(%d, %d): %d vertices, want %d", tt.rings, tt.segments, len(vertices), tt.wantVertices)
		}
		if len(faces) != 3*tt.wantTriangles {
			t.Errorf("UVSphereGeometry(%d, %d): %d triangles, want %d", tt.rings, tt.segments, len(faces)/3, tt.wantTriangles)
		}
		for _, v := range vertices {
			if math.Abs(v.Length()-1) > 1e-12 {
				t.Fatalf("vertex %v is not on the unit sphere", v)
			}
		}
		if !windsOutward(vertices, faces) {
			t.Errorf("UVSphereGeometry(%d, %d) has inward-facing triangles", tt.rings, tt.segments)
		}
	}

	for _, bad := range [][2]int{{1, 8}, {4, 2}} {
		if _, _, err := UVSphereGeometry(bad[0], bad[1]); !errors.Is(err, core.ErrInvalidArgument) {
			t.Errorf("UVSphereGeometry(%d, %d) error = %v, want ErrInvalidArgument", bad[0], bad[1], err)
		}
	}

	mesh, err := NewUVSphereMesh(4, 6, nil)
	if err != nil {
		t.Fatalf("NewUVSphereMesh() error = %v", err)
	}
	if mesh.PrimitiveCount() != 36 {
		t.Errorf("NewUVSphereMesh() has %d triangles, want 36", mesh.PrimitiveCount())
	}
}

func TestIcosahedronGeometry(t *testing.T) {
	vertices, faces := IcosahedronGeometry()
	if len(vertices) != 12 || len(faces) != 60 {
		t.Fatalf("Expected 12 vertices and 20 faces, got %d and %d", len(vertices), len(faces)/3)
	}
	if !windsOutward(vertices, faces) {
		t.Error("Icosahedron has inward-facing triangles")
	}

	phi := (1 + math.Sqrt(5)) / 2
	edge := 2 / math.Sqrt(1+phi*phi)
	wantArea := 5 * math.Sqrt(3) * edge * edge

	mesh, err := NewIcosahedronMesh(nil)
	if err != nil {
		t.Fatalf("NewIcosahedronMesh() error = %v", err)
	}
	if math.Abs(mesh.SurfaceArea()-wantArea) > 1e-9 {
		t.Errorf("SurfaceArea() = %v, want %v", mesh.SurfaceArea(), wantArea)
	}
}

func TestPrimitiveGroupScene(t *testing.T) {
	s, err := NewPrimitiveGroupScene()
	if err != nil {
		t.Fatalf("NewPrimitiveGroupScene() error = %v", err)
	}
	if got := s.GetStoredPrimitiveCount(); got != 11 {
		t.Errorf("GetStoredPrimitiveCount() = %d, want 11", got)
	}
	if got := s.GetPrimitiveCount(); got != 22 {
		t.Errorf("GetPrimitiveCount() = %d, want 22", got)
	}

	// Group-wide indices: sphere 0, box faces 1-6, quad 7, disc 8, cylinder 9, triangle 10
	tests := []struct {
		name      string
		origin    core.Vec3
		wantIndex int
		instance  int
	}{
		{"sphere", core.NewVec3(-3, 0, -5), 0, 0},
		{"box near face", core.NewVec3(-1, 0, -5), 2, 0},
		{"quad", core.NewVec3(0.75, 0, -5), 7, 0},
		{"disc", core.NewVec3(2, 0, -5), 8, 0},
		{"cylinder", core.NewVec3(3, 0, -5), 9, 0},
		{"triangle", core.NewVec3(4.5, -0.2, -5), 10, 0},
		{"sphere in squashed copy", core.NewVec3(-3, 3, -5), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ray := core.NewRay(tt.origin, core.NewVec3(0, 0, 1))
			hit, ok := s.Hit(ray, 0.001, math.Inf(1))
			if !ok {
				t.Fatal("Expected hit")
			}
			if hit.PrimIndex != tt.wantIndex {
				t.Errorf("PrimIndex = %d, want %d", hit.PrimIndex, tt.wantIndex)
			}
			if hit.Instance != s.Instances()[tt.instance] {
				t.Errorf("Hit attributed to the wrong instance")
			}
		})
	}

	if s.SurfaceArea() <= 0 {
		t.Errorf("Expected positive surface area, got %f", s.SurfaceArea())
	}
}
