package geometry

import (
	"fmt"
	"math"
	"sync"

	"github.com/df07/go-instancing/pkg/core"
)

// Instance places a shared ShapeGroup in the world with its own transform.
// Queries are mapped into the group's local space and the results mapped
// back, so an instance behaves like a transformed copy of the group's
// geometry without duplicating it.
type Instance struct {
	group   *ShapeGroup
	toWorld *core.AnimatedTransform
	bbox    core.AABB

	releaseOnce sync.Once
}

// NewInstance creates an instance of group placed by toWorld
func NewInstance(group *ShapeGroup, toWorld core.Transform) (*Instance, error) {
	return NewAnimatedInstance(group, core.NewStaticTransform(toWorld))
}

// NewAnimatedInstance creates an instance whose placement varies with ray time.
// The group is finalized if it has not been already.
func NewAnimatedInstance(group *ShapeGroup, toWorld *core.AnimatedTransform) (*Instance, error) {
	if group == nil {
		return nil, fmt.Errorf("instance needs a shape group: %w", core.ErrInvalidArgument)
	}
	if toWorld == nil || !toWorld.IsInvertible() {
		return nil, fmt.Errorf("instance of %q: transform is not invertible: %w", group.ID(), core.ErrInvalidArgument)
	}

	inst := &Instance{
		group:   group,
		toWorld: toWorld,
		bbox:    toWorld.Bounds(group.LocalBoundingBox()),
	}
	group.retain()
	return inst, nil
}

// Group returns the shared group
func (inst *Instance) Group() *ShapeGroup {
	return inst.group
}

// Transform returns the world transform at time
func (inst *Instance) Transform(time float64) core.Transform {
	return inst.toWorld.Eval(time)
}

// Hit intersects a world-space ray with the instanced geometry. The local
// ray keeps the transformed (unnormalized) direction, so T is the same in
// both spaces.
func (inst *Instance) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	toWorld := inst.toWorld.Eval(ray.Time)
	local := toWorld.Inverse().Ray(ray)

	si, ok := inst.group.Hit(local, tMin, tMax)
	if !ok {
		return nil, false
	}

	si.Point = toWorld.Point(si.Point)
	si.DpDu = toWorld.Vector(si.DpDu)
	si.DpDv = toWorld.Vector(si.DpDv)

	// The local normal already faces the local ray; the inverse-transpose
	// keeps that orientation relative to the world ray
	si.Normal = toWorld.Normal(si.Normal).Normalize()

	si.ComputeShading(ray)
	si.Instance = inst
	return si, true
}

// Test reports whether a world-space ray hits the instanced geometry
func (inst *Instance) Test(ray core.Ray, tMin, tMax float64) bool {
	local := inst.toWorld.Eval(ray.Time).Inverse().Ray(ray)
	return inst.group.Test(local, tMin, tMax)
}

// BoundingBox returns the group's local bounds in world space, covering
// the whole motion for animated instances
func (inst *Instance) BoundingBox() core.AABB {
	return inst.bbox
}

// PrimitiveCount is 0: the primitives are stored once, in the group
func (inst *Instance) PrimitiveCount() int { return 0 }

// EffectivePrimitiveCount is the number of primitives the instance makes visible
func (inst *Instance) EffectivePrimitiveCount() int {
	return inst.group.PrimitiveCount()
}

// SurfaceArea returns the world-space area of the group's primitives,
// using the transform at the start of the motion
func (inst *Instance) SurfaceArea() float64 {
	return inst.group.TransformedSurfaceArea(inst.toWorld.Eval(inst.toWorld.Times()[0]))
}

// Release drops the instance's reference to its group. Further calls are no-ops.
func (inst *Instance) Release() {
	inst.releaseOnce.Do(inst.group.release)
}

// transformedArea returns the area of shape under the linear part of t
func transformedArea(shape core.Shape, t core.Transform) float64 {
	if at, ok := shape.(core.AreaTransformer); ok {
		return at.TransformedSurfaceArea(t)
	}
	return shape.SurfaceArea() * math.Pow(math.Abs(t.Determinant()), 2.0/3.0)
}
