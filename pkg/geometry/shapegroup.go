package geometry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/golang/glog"
)

// ShapeGroup is a shared, immutable collection of shapes in a local
// coordinate space. It is never placed in the world directly: it reports no
// bounds, area or effective primitives of its own, and becomes visible only
// through Instances.
//
// The BVH over the children is built once, either explicitly with Build or
// lazily on first use. After that the group is read-only and safe for
// concurrent queries.
type ShapeGroup struct {
	id string

	mu             sync.Mutex // guards children until the group is finalized
	children       []core.Shape
	offsets        []int // first group-wide primitive index of each child
	primitiveCount int
	finalized      bool

	once sync.Once
	bvh  *BVH
	bbox core.AABB

	refs atomic.Int64
}

// NewShapeGroup creates a group with an identifier and optional initial children
func NewShapeGroup(id string, shapes ...core.Shape) (*ShapeGroup, error) {
	g := &ShapeGroup{id: id, bbox: core.EmptyAABB()}
	for _, shape := range shapes {
		if err := g.Add(shape); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ID returns the group's scene identifier
func (g *ShapeGroup) ID() string {
	return g.id
}

// Add appends a shape. It fails once the group has been finalized, and for
// shapes that are themselves groups or instances.
func (g *ShapeGroup) Add(shape core.Shape) error {
	switch shape.(type) {
	case nil:
		return fmt.Errorf("shape group %q: nil shape: %w", g.id, core.ErrInvalidArgument)
	case *ShapeGroup, *Instance:
		return fmt.Errorf("shape group %q: nested instancing is not supported (%T): %w", g.id, shape, core.ErrInvalidArgument)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.finalized {
		return fmt.Errorf("shape group %q: add after build: %w", g.id, core.ErrInvalidState)
	}

	g.children = append(g.children, shape)
	g.offsets = append(g.offsets, g.primitiveCount)
	g.primitiveCount += shape.PrimitiveCount()
	return nil
}

// Build finalizes the group and builds its BVH. A second call, including
// one after lazy finalization, returns ErrInvalidState.
func (g *ShapeGroup) Build() error {
	built := false
	g.once.Do(func() {
		g.build()
		built = true
	})
	if !built {
		return fmt.Errorf("shape group %q: already built: %w", g.id, core.ErrInvalidState)
	}
	return nil
}

// IsBuilt reports whether the group has been finalized
func (g *ShapeGroup) IsBuilt() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finalized
}

// finalize builds the group on first use; concurrent callers block until
// the first one finishes
func (g *ShapeGroup) finalize() {
	g.once.Do(g.build)
}

func (g *ShapeGroup) build() {
	g.mu.Lock()
	g.finalized = true
	children := g.children
	offsets := g.offsets
	g.mu.Unlock()

	members := make([]core.Shape, len(children))
	bbox := core.EmptyAABB()
	for i, child := range children {
		members[i] = &groupMember{Shape: child, offset: offsets[i]}
		bbox = bbox.Union(child.BoundingBox())
	}

	g.bvh = NewBVH(members)
	g.bbox = bbox

	if len(children) == 0 {
		glog.Warningf("shape group %q is empty; its instances will never be hit", g.id)
		return
	}
	stats := g.bvh.Stats()
	glog.V(1).Infof("shape group %q built: %d shapes, %d primitives, %d BVH nodes, depth %d",
		g.id, len(children), g.primitiveCount, stats.TotalNodes, stats.MaxDepth)
}

// Hit intersects a local-space ray with the group's children
func (g *ShapeGroup) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	g.finalize()
	return g.bvh.Hit(ray, tMin, tMax)
}

// Test reports whether a local-space ray hits any child
func (g *ShapeGroup) Test(ray core.Ray, tMin, tMax float64) bool {
	g.finalize()
	return g.bvh.Test(ray, tMin, tMax)
}

// BoundingBox is always empty: an uninstanced group occupies no world space.
// Use LocalBoundingBox for the bounds of the children.
func (g *ShapeGroup) BoundingBox() core.AABB {
	return core.EmptyAABB()
}

// LocalBoundingBox returns the union of the children's bounds, finalizing
// the group. It is invalid for an empty group.
func (g *ShapeGroup) LocalBoundingBox() core.AABB {
	g.finalize()
	return g.bbox
}

// PrimitiveCount returns the number of primitives stored in the group
func (g *ShapeGroup) PrimitiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.primitiveCount
}

// EffectivePrimitiveCount is always 0; instances own the visible count
func (g *ShapeGroup) EffectivePrimitiveCount() int { return 0 }

// SurfaceArea is always 0; instances report the transformed area
func (g *ShapeGroup) SurfaceArea() float64 { return 0 }

// TransformedSurfaceArea sums the children's areas under t. Children that
// cannot transform their area fall back to their untransformed area scaled
// by |det|^(2/3).
func (g *ShapeGroup) TransformedSurfaceArea(t core.Transform) float64 {
	g.finalize()
	area := 0.0
	for _, child := range g.children {
		area += transformedArea(child, t)
	}
	return area
}

// Shapes returns the group's children
func (g *ShapeGroup) Shapes() []core.Shape {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.Shape(nil), g.children...)
}

// References returns the number of live instances of the group
func (g *ShapeGroup) References() int {
	return int(g.refs.Load())
}

func (g *ShapeGroup) retain() {
	g.refs.Add(1)
}

func (g *ShapeGroup) release() {
	g.refs.Add(-1)
}

// groupMember places a child into the group's contiguous primitive index range
type groupMember struct {
	core.Shape
	offset int
}

func (m *groupMember) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	si, ok := m.Shape.Hit(ray, tMin, tMax)
	if !ok {
		return nil, false
	}
	si.PrimIndex += m.offset
	return si, true
}
