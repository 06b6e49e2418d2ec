package core

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Relative determinant threshold below which a transform is treated as singular
const singularThreshold = 1e-12

// Transform is an affine 4x4 transform with a precomputed inverse.
// The zero value is not invertible; use Identity or one of the builders.
type Transform struct {
	m          mgl64.Mat4
	inv        mgl64.Mat4
	normal     mgl64.Mat3 // inverse-transpose of the linear part
	invertible bool
}

// Identity returns the identity transform
func Identity() Transform {
	return FromMatrix(mgl64.Ident4())
}

// FromMatrix wraps m without validation. Use IsInvertible, or NewTransform
// to reject singular and non-affine matrices.
func FromMatrix(m mgl64.Mat4) Transform {
	t := Transform{m: m}
	if !isAffine(m) || isSingular(m) {
		return t
	}
	t.inv = m.Inv()
	t.normal = t.inv.Mat3().Transpose()
	t.invertible = true
	return t
}

// NewTransform creates a transform from m, failing for singular or
// non-affine matrices
func NewTransform(m mgl64.Mat4) (Transform, error) {
	t := FromMatrix(m)
	if !isAffine(m) {
		return Transform{}, fmt.Errorf("transform is not affine: %w", ErrInvalidArgument)
	}
	if !t.invertible {
		return Transform{}, fmt.Errorf("transform is singular (det=%g): %w", m.Det(), ErrInvalidArgument)
	}
	return t, nil
}

// Translate returns a translation by offset
func Translate(offset Vec3) Transform {
	return FromMatrix(mgl64.Translate3D(offset.X, offset.Y, offset.Z))
}

// Scale returns a (possibly non-uniform) scale. A zero component yields a
// non-invertible transform.
func Scale(factors Vec3) Transform {
	return FromMatrix(mgl64.Scale3D(factors.X, factors.Y, factors.Z))
}

// UniformScale returns a scale by s along every axis
func UniformScale(s float64) Transform {
	return Scale(NewVec3(s, s, s))
}

// Rotate returns a rotation by angle radians around axis
func Rotate(axis Vec3, angle float64) Transform {
	if axis.LengthSquared() == 0 {
		return Identity()
	}
	return FromMatrix(mgl64.HomogRotate3D(angle, toMgl(axis.Normalize())))
}

// Compose chains transforms so that ts[0] is applied first
func Compose(ts ...Transform) Transform {
	result := Identity()
	for _, t := range ts {
		result = t.Mul(result)
	}
	return result
}

// Mul returns t∘other: other is applied first, then t
func (t Transform) Mul(other Transform) Transform {
	result := Transform{m: t.m.Mul4(other.m)}
	if !t.invertible || !other.invertible {
		return result
	}
	result.inv = other.inv.Mul4(t.inv)
	result.normal = result.inv.Mat3().Transpose()
	result.invertible = true
	return result
}

// Inverse returns the inverse transform. The inverse of a non-invertible
// transform is itself non-invertible.
func (t Transform) Inverse() Transform {
	if !t.invertible {
		return Transform{}
	}
	return Transform{
		m:          t.inv,
		inv:        t.m,
		normal:     t.m.Mat3().Transpose(),
		invertible: true,
	}
}

// IsInvertible reports whether t has a usable inverse
func (t Transform) IsInvertible() bool {
	return t.invertible
}

// IsIdentity reports whether t is exactly the identity
func (t Transform) IsIdentity() bool {
	return t.m == mgl64.Ident4()
}

// Matrix returns the forward matrix
func (t Transform) Matrix() mgl64.Mat4 {
	return t.m
}

// Linear returns the upper-left 3x3 linear part
func (t Transform) Linear() mgl64.Mat3 {
	return t.m.Mat3()
}

// Determinant returns the determinant of the linear part
func (t Transform) Determinant() float64 {
	return t.m.Mat3().Det()
}

// Point transforms a position
func (t Transform) Point(p Vec3) Vec3 {
	return fromMgl(t.m.Mul4x1(toMgl(p).Vec4(1)).Vec3())
}

// Vector transforms a direction (translation is ignored)
func (t Transform) Vector(v Vec3) Vec3 {
	return fromMgl(t.m.Mat3().Mul3x1(toMgl(v)))
}

// Normal transforms a surface normal with the inverse-transpose of the
// linear part. The result is not normalized.
func (t Transform) Normal(n Vec3) Vec3 {
	return fromMgl(t.normal.Mul3x1(toMgl(n)))
}

// Ray transforms origin and direction. Time is preserved and the direction
// keeps its transformed length, so hit distances are the same in both spaces.
func (t Transform) Ray(r Ray) Ray {
	return Ray{
		Origin:    t.Point(r.Origin),
		Direction: t.Vector(r.Direction),
		Time:      r.Time,
	}
}

// Box transforms all eight corners of box and returns their bounds.
// An invalid box is returned unchanged.
func (t Transform) Box(box AABB) AABB {
	if !box.IsValid() {
		return box
	}
	result := EmptyAABB()
	for i := 0; i < 8; i++ {
		result = result.ExpandToPoint(t.Point(box.Corner(i)))
	}
	return result
}

// ApproxEqual compares forward matrices element-wise within an absolute eps
func (t Transform) ApproxEqual(other Transform, eps float64) bool {
	for i := range t.m {
		if math.Abs(t.m[i]-other.m[i]) > eps {
			return false
		}
	}
	return true
}

func (t Transform) String() string {
	return fmt.Sprintf("Transform%v", t.m)
}

func isAffine(m mgl64.Mat4) bool {
	return m.At(3, 0) == 0 && m.At(3, 1) == 0 && m.At(3, 2) == 0 && m.At(3, 3) == 1
}

func isSingular(m mgl64.Mat4) bool {
	linear := m.Mat3()
	det := linear.Det()
	if math.IsNaN(det) || math.IsInf(det, 0) {
		return true
	}
	largest := 0.0
	for _, v := range linear {
		largest = math.Max(largest, math.Abs(v))
	}
	if largest == 0 {
		return true
	}
	return math.Abs(det) <= singularThreshold*largest*largest*largest
}

func toMgl(v Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func fromMgl(v mgl64.Vec3) Vec3 {
	return Vec3{X: v[0], Y: v[1], Z: v[2]}
}
