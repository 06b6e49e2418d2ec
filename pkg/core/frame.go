package core

import "math"

// Frame is an orthonormal basis with N as the third axis
type Frame struct {
	S, T, N Vec3
}

// NewFrame builds an orthonormal basis around the unit normal n
func NewFrame(n Vec3) Frame {
	// Find a vector that is not parallel to the normal
	var nt Vec3
	if math.Abs(n.X) > 0.1 {
		nt = NewVec3(0, 1, 0)
	} else {
		nt = NewVec3(1, 0, 0)
	}

	s := nt.Cross(n).Normalize()
	return Frame{S: s, T: n.Cross(s), N: n}
}

// NewFrameFromTangent builds a basis around n whose S axis follows dpdu.
// Falls back to NewFrame when dpdu is degenerate or parallel to n.
func NewFrameFromTangent(n, dpdu Vec3) Frame {
	s := dpdu.Subtract(n.Multiply(n.Dot(dpdu)))
	if s.LengthSquared() < 1e-20 {
		return NewFrame(n)
	}
	s = s.Normalize()
	return Frame{S: s, T: n.Cross(s), N: n}
}

// ToLocal expresses a world vector in frame coordinates
func (f Frame) ToLocal(v Vec3) Vec3 {
	return NewVec3(v.Dot(f.S), v.Dot(f.T), v.Dot(f.N))
}

// ToWorld expresses a frame-local vector in world coordinates
func (f Frame) ToWorld(v Vec3) Vec3 {
	return f.S.Multiply(v.X).Add(f.T.Multiply(v.Y)).Add(f.N.Multiply(v.Z))
}
