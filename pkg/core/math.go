// pkg/core/math.go
package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 is a position or direction in world space. Y is up. The named
// fields are the wire and storage layout; arithmetic goes through mgl32.
type Vec3 struct {
	X float32
	Y float32
	Z float32
}

// VecFrom converts an mgl32 vector.
func VecFrom(m mgl32.Vec3) Vec3 { return Vec3{X: m[0], Y: m[1], Z: m[2]} }

// Mgl returns v as an mgl32 vector.
func (v Vec3) Mgl() mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return VecFrom(v.Mgl().Add(o.Mgl())) }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return VecFrom(v.Mgl().Sub(o.Mgl())) }

// Scale returns v*s.
func (v Vec3) Scale(s float32) Vec3 { return VecFrom(v.Mgl().Mul(s)) }

// Length returns the euclidean length.
func (v Vec3) Length() float32 { return v.Mgl().Len() }

// Distance returns the euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float32 { return v.Sub(o).Length() }

// NormalizeOrZero returns the unit vector in the direction of v, or the zero
// vector when v has no usable length.
func (v Vec3) NormalizeOrZero() Vec3 {
	l := v.Length()
	if l == 0 || math.IsInf(float64(l), 0) || math.IsNaN(float64(l)) {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Flat returns v projected onto the ground plane.
func (v Vec3) Flat() Vec3 { return Vec3{X: v.X, Z: v.Z} }

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool { return v == Vec3{} }

// Quat is a rotation quaternion.
type Quat struct {
	X float32
	Y float32
	Z float32
	W float32
}

// QuatFrom converts an mgl32 quaternion.
func QuatFrom(m mgl32.Quat) Quat { return Quat{X: m.V[0], Y: m.V[1], Z: m.V[2], W: m.W} }

// Mgl returns q as an mgl32 quaternion.
func (q Quat) Mgl() mgl32.Quat { return mgl32.Quat{W: q.W, V: mgl32.Vec3{q.X, q.Y, q.Z}} }

// IdentityQuat is the no-rotation quaternion.
func IdentityQuat() Quat { return QuatFrom(mgl32.QuatIdent()) }

// QuatFromYaw returns a rotation of angle radians about the Y axis.
func QuatFromYaw(angle float64) Quat {
	return QuatFrom(mgl32.QuatRotate(float32(angle), mgl32.Vec3{0, 1, 0}))
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 { return VecFrom(q.Mgl().Rotate(v.Mgl())) }

// Forward is the -Z axis rotated by q.
func (q Quat) Forward() Vec3 { return q.Rotate(Vec3{Z: -1}) }

// Right is the +X axis rotated by q.
func (q Quat) Right() Vec3 { return q.Rotate(Vec3{X: 1}) }

// Transform is a position and orientation.
type Transform struct {
	Translation Vec3
	Rotation    Quat
}

// NewTransform returns a transform at pos with identity rotation.
func NewTransform(pos Vec3) Transform {
	return Transform{Translation: pos, Rotation: IdentityQuat()}
}
