package scene

import (
	"fmt"
	"sort"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/df07/go-instancing/pkg/geometry"
	"github.com/golang/glog"
)

// Scene holds the top-level shapes, the shape groups they can instance, and
// the acceleration structure over everything placed in the world
type Scene struct {
	Shapes []core.Shape   // Objects in the scene, including shape groups and instances
	BVH    *geometry.BVH // Top-level acceleration structure, built by Preprocess

	groups    map[string]*geometry.ShapeGroup
	instances []*geometry.Instance
}

// New creates an empty scene
func New() *Scene {
	return &Scene{groups: make(map[string]*geometry.ShapeGroup)}
}

// AddShape adds a shape that is placed in the world directly
func (s *Scene) AddShape(shape core.Shape) {
	s.Shapes = append(s.Shapes, shape)
}

// AddShapeGroup registers a shape group under id. The group is a scene
// member but contributes nothing until it is instanced.
func (s *Scene) AddShapeGroup(id string, shapes ...core.Shape) (*geometry.ShapeGroup, error) {
	if id == "" {
		return nil, fmt.Errorf("shape group needs an id: %w", core.ErrInvalidArgument)
	}
	if _, exists := s.groups[id]; exists {
		return nil, fmt.Errorf("duplicate shape group id %q: %w", id, core.ErrInvalidArgument)
	}

	group, err := geometry.NewShapeGroup(id, shapes...)
	if err != nil {
		return nil, err
	}
	s.groups[id] = group
	s.Shapes = append(s.Shapes, group)
	return group, nil
}

// ShapeGroup looks up a registered group
func (s *Scene) ShapeGroup(id string) (*geometry.ShapeGroup, bool) {
	group, ok := s.groups[id]
	return group, ok
}

// ShapeGroupIDs returns the registered group ids in sorted order
func (s *Scene) ShapeGroupIDs() []string {
	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddInstance places the group registered under groupID with toWorld
func (s *Scene) AddInstance(groupID string, toWorld core.Transform) (*geometry.Instance, error) {
	return s.AddAnimatedInstance(groupID, core.NewStaticTransform(toWorld))
}

// AddAnimatedInstance places the group registered under groupID with a
// time-varying transform
func (s *Scene) AddAnimatedInstance(groupID string, toWorld *core.AnimatedTransform) (*geometry.Instance, error) {
	group, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("instance references unknown shape group %q: %w", groupID, core.ErrInvalidArgument)
	}

	inst, err := geometry.NewAnimatedInstance(group, toWorld)
	if err != nil {
		return nil, err
	}
	s.instances = append(s.instances, inst)
	s.Shapes = append(s.Shapes, inst)
	return inst, nil
}

// Instances returns the instances in creation order
func (s *Scene) Instances() []*geometry.Instance {
	return s.instances
}

// Preprocess builds the top-level BVH. Shapes without a valid bounding box,
// such as shape groups, are not placed in it.
func (s *Scene) Preprocess() error {
	s.BVH = geometry.NewBVH(s.Shapes)

	stats := s.BVH.Stats()
	glog.Infof("Scene preprocessed: %d shapes (%d placed), %d groups, %d instances, %d effective primitives",
		len(s.Shapes), stats.TotalShapes, len(s.groups), len(s.instances), s.GetPrimitiveCount())
	glog.V(1).Infof("Top-level BVH: %d nodes, %d leaves, max depth %d, avg depth %.1f",
		stats.TotalNodes, stats.LeafNodes, stats.MaxDepth, stats.AvgDepth)
	return nil
}

// Hit returns the closest intersection in the scene. Preprocess must have
// been called.
func (s *Scene) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	if s.BVH == nil {
		return nil, false
	}
	return s.BVH.Hit(ray, tMin, tMax)
}

// Test reports whether any shape in the scene is hit. Preprocess must have
// been called.
func (s *Scene) Test(ray core.Ray, tMin, tMax float64) bool {
	if s.BVH == nil {
		return false
	}
	return s.BVH.Test(ray, tMin, tMax)
}

// BoundingBox returns the bounds of everything placed in the world
func (s *Scene) BoundingBox() core.AABB {
	box := core.EmptyAABB()
	for _, shape := range s.Shapes {
		box = box.Union(shape.BoundingBox())
	}
	return box
}

// GetPrimitiveCount returns the number of primitives visible in the world.
// Uninstanced groups count zero and every instance counts its group.
func (s *Scene) GetPrimitiveCount() int {
	count := 0
	for _, shape := range s.Shapes {
		count += shape.EffectivePrimitiveCount()
	}
	return count
}

// GetStoredPrimitiveCount returns the number of primitives held in memory.
// Instanced geometry is counted once, in its group.
func (s *Scene) GetStoredPrimitiveCount() int {
	count := 0
	for _, shape := range s.Shapes {
		count += shape.PrimitiveCount()
	}
	return count
}

// SurfaceArea returns the total world-space surface area
func (s *Scene) SurfaceArea() float64 {
	area := 0.0
	for _, shape := range s.Shapes {
		area += shape.SurfaceArea()
	}
	return area
}

// Release drops every instance's reference to its group
func (s *Scene) Release() {
	for _, inst := range s.instances {
		inst.Release()
	}
}
