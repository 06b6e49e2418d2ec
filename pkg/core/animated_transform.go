package core

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Number of interior samples per keyframe segment used when bounding motion
const motionBoundSamples = 8

// Keyframe is a decomposed transform (scale, then rotation, then
// translation) at a point in time
type Keyframe struct {
	Time        float64
	Scale       Vec3
	Rotation    mgl64.Quat
	Translation Vec3
}

// Transform returns the keyframe as a matrix transform
func (k Keyframe) Transform() Transform {
	return FromMatrix(composeTRS(k.Scale, k.Rotation, k.Translation))
}

// AnimatedTransform is either a fixed transform or a sequence of keyframes
// interpolated over time. It is immutable once constructed.
type AnimatedTransform struct {
	static Transform
	keys   []Keyframe
}

// NewStaticTransform wraps a fixed transform
func NewStaticTransform(t Transform) *AnimatedTransform {
	return &AnimatedTransform{static: t}
}

// NewAnimatedTransform creates an animated transform from keyframes.
// Keys are sorted by time. Repeated times, zero scale components and scale
// components that change sign between consecutive keys are rejected, since
// the interpolated scale would pass through zero.
func NewAnimatedTransform(keys ...Keyframe) (*AnimatedTransform, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("animated transform needs at least one keyframe: %w", ErrInvalidArgument)
	}

	sorted := make([]Keyframe, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	for i, key := range sorted {
		if i > 0 && key.Time == sorted[i-1].Time {
			return nil, fmt.Errorf("duplicate keyframe time %g: %w", key.Time, ErrInvalidArgument)
		}
		if key.Scale.X == 0 || key.Scale.Y == 0 || key.Scale.Z == 0 {
			return nil, fmt.Errorf("keyframe at time %g has zero scale %v: %w", key.Time, key.Scale, ErrInvalidArgument)
		}
		if i > 0 {
			prev := sorted[i-1].Scale
			if prev.X*key.Scale.X < 0 || prev.Y*key.Scale.Y < 0 || prev.Z*key.Scale.Z < 0 {
				return nil, fmt.Errorf("scale flips sign between times %g and %g (%v to %v): %w",
					sorted[i-1].Time, key.Time, prev, key.Scale, ErrInvalidArgument)
			}
		}
		if key.Rotation.Len() == 0 {
			sorted[i].Rotation = mgl64.QuatIdent()
		} else {
			sorted[i].Rotation = key.Rotation.Normalize()
		}
	}

	if len(sorted) == 1 {
		return NewStaticTransform(sorted[0].Transform()), nil
	}
	return &AnimatedTransform{keys: sorted}, nil
}

// IsAnimated reports whether the transform varies over time
func (a *AnimatedTransform) IsAnimated() bool {
	return len(a.keys) > 1
}

// IsInvertible reports whether every evaluated transform is invertible.
// Keyframes are validated at construction.
func (a *AnimatedTransform) IsInvertible() bool {
	if a.IsAnimated() {
		return true
	}
	return a.static.IsInvertible()
}

// Times returns the keyframe times, or a single zero for a static transform
func (a *AnimatedTransform) Times() []float64 {
	if !a.IsAnimated() {
		return []float64{0}
	}
	times := make([]float64, len(a.keys))
	for i, key := range a.keys {
		times[i] = key.Time
	}
	return times
}

// Eval returns the transform at time. Times outside the keyframe range are
// clamped to the first or last key.
func (a *AnimatedTransform) Eval(time float64) Transform {
	if !a.IsAnimated() {
		return a.static
	}

	first, last := a.keys[0], a.keys[len(a.keys)-1]
	if time <= first.Time {
		return first.Transform()
	}
	if time >= last.Time {
		return last.Transform()
	}

	// Index of the first key strictly after time
	idx := sort.Search(len(a.keys), func(i int) bool { return a.keys[i].Time > time })
	k0, k1 := a.keys[idx-1], a.keys[idx]
	alpha := (time - k0.Time) / (k1.Time - k0.Time)

	r0, r1 := k0.Rotation, k1.Rotation
	if r0.Dot(r1) < 0 {
		r1 = r1.Scale(-1) // shortest arc
	}

	return FromMatrix(composeTRS(
		k0.Scale.Lerp(k1.Scale, alpha),
		mgl64.QuatSlerp(r0, r1, alpha).Normalize(),
		k0.Translation.Lerp(k1.Translation, alpha),
	))
}

// Bounds returns the union of box transformed over the whole animation
func (a *AnimatedTransform) Bounds(box AABB) AABB {
	if !box.IsValid() {
		return box
	}
	if !a.IsAnimated() {
		return a.static.Box(box)
	}

	result := EmptyAABB()
	for i := 0; i < len(a.keys)-1; i++ {
		t0, t1 := a.keys[i].Time, a.keys[i+1].Time
		for s := 0; s <= motionBoundSamples; s++ {
			time := t0 + (t1-t0)*float64(s)/motionBoundSamples
			result = result.Union(a.Eval(time).Box(box))
		}
	}
	return result
}

func composeTRS(scale Vec3, rotation mgl64.Quat, translation Vec3) mgl64.Mat4 {
	return mgl64.Translate3D(translation.X, translation.Y, translation.Z).
		Mul4(rotation.Mat4()).
		Mul4(mgl64.Scale3D(scale.X, scale.Y, scale.Z))
}
