package geometry

import (
	"math"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/integrate/quad"
)

// Gauss-Legendre points per axis for the transformed sphere area integral
const sphereAreaQuadraturePoints = 64

// Sphere represents a sphere shape
type Sphere struct {
	Center core.Vec3
	Radius float64
}

// NewSphere creates a new sphere
func NewSphere(center core.Vec3, radius float64) *Sphere {
	return &Sphere{
		Center: center,
		Radius: radius,
	}
}

// intersect returns the nearest root of the ray/sphere quadratic in [tMin, tMax]
func (s *Sphere) intersect(ray core.Ray, tMin, tMax float64) (float64, bool) {
	// Vector from ray origin to sphere center
	oc := ray.Origin.Subtract(s.Center)

	// Quadratic equation coefficients: at² + bt + c = 0
	a := ray.Direction.Dot(ray.Direction)
	if a == 0 {
		return 0, false
	}
	halfB := oc.Dot(ray.Direction)
	c := oc.Dot(oc) - s.Radius*s.Radius

	discriminant := halfB*halfB - a*c
	if discriminant < 0 {
		return 0, false
	}

	sqrtD := math.Sqrt(discriminant)

	// Try the closer intersection point first
	root := (-halfB - sqrtD) / a
	if root < tMin || root > tMax {
		root = (-halfB + sqrtD) / a
		if root < tMin || root > tMax {
			return 0, false
		}
	}
	return root, true
}

// Hit tests if a ray intersects with the sphere
func (s *Sphere) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	root, ok := s.intersect(ray, tMin, tMax)
	if !ok {
		return nil, false
	}

	si := &core.SurfaceInteraction{
		T:     root,
		Point: ray.At(root),
		Shape: s,
	}

	// Calculate outward normal (from center to hit point)
	local := si.Point.Subtract(s.Center)
	outwardNormal := local.Multiply(1.0 / s.Radius)
	si.SetFaceNormal(ray, outwardNormal)

	// Spherical parameterization: u follows phi around Z, v follows theta from +Z
	phi := math.Atan2(local.Y, local.X)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	cosTheta := math.Max(-1, math.Min(1, local.Z/s.Radius))
	theta := math.Acos(cosTheta)
	si.UV = core.NewVec2(phi/(2*math.Pi), theta/math.Pi)
	si.DpDu = core.NewVec3(-2*math.Pi*local.Y, 2*math.Pi*local.X, 0)
	sinPhi, cosPhi := math.Sincos(phi)
	si.DpDv = core.NewVec3(local.Z*cosPhi, local.Z*sinPhi, -s.Radius*math.Sin(theta)).Multiply(math.Pi)

	si.ComputeShading(ray)
	return si, true
}

// Test reports whether the ray intersects the sphere
func (s *Sphere) Test(ray core.Ray, tMin, tMax float64) bool {
	_, ok := s.intersect(ray, tMin, tMax)
	return ok
}

// BoundingBox returns the axis-aligned bounding box for this sphere
func (s *Sphere) BoundingBox() core.AABB {
	radius := core.NewVec3(s.Radius, s.Radius, s.Radius)
	return core.NewAABB(
		s.Center.Subtract(radius),
		s.Center.Add(radius),
	)
}

func (s *Sphere) PrimitiveCount() int          { return 1 }
func (s *Sphere) EffectivePrimitiveCount() int { return 1 }

// SurfaceArea returns 4πr²
func (s *Sphere) SurfaceArea() float64 {
	return 4 * math.Pi * s.Radius * s.Radius
}

// TransformedSurfaceArea returns the area of the sphere mapped through the
// linear part of t. Similarity transforms use the closed form; general
// transforms integrate |det M| * |M^-T n| over the unit sphere.
func (s *Sphere) TransformedSurfaceArea(t core.Transform) float64 {
	m := t.Linear()
	if scale2, ok := similarityScale2(m); ok {
		return s.SurfaceArea() * scale2
	}

	det := math.Abs(m.Det())
	normalMatrix := m.Inv().Transpose()

	integrand := func(theta float64) float64 {
		sinTheta, cosTheta := math.Sincos(theta)
		ring := quad.Fixed(func(phi float64) float64 {
			sinPhi, cosPhi := math.Sincos(phi)
			n := mgl64.Vec3{sinTheta * cosPhi, sinTheta * sinPhi, cosTheta}
			return normalMatrix.Mul3x1(n).Len()
		}, 0, 2*math.Pi, sphereAreaQuadraturePoints, quad.Legendre{}, 0)
		return ring * sinTheta
	}

	unit := quad.Fixed(integrand, 0, math.Pi, sphereAreaQuadraturePoints, quad.Legendre{}, 0)
	return s.Radius * s.Radius * det * unit
}

// similarityScale2 returns s² when m = s·R for a rotation (or reflection) R
func similarityScale2(m mgl64.Mat3) (float64, bool) {
	mtm := m.Transpose().Mul3(m)
	scale2 := (mtm.At(0, 0) + mtm.At(1, 1) + mtm.At(2, 2)) / 3
	if scale2 == 0 {
		return 0, false
	}
	const tolerance = 1e-12
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			want := 0.0
			if row == col {
				want = scale2
			}
			if math.Abs(mtm.At(row, col)-want) > tolerance*scale2 {
				return 0, false
			}
		}
	}
	return scale2, true
}
