package world

import "math"

// Epsilon is the tolerance used for all float comparisons in the engine.
// Snapshot round-trips lose precision, so equality is never exact.
const Epsilon = 1e-3

// Vec3 is a world-space 3D vector. The streaming grid only cares about the
// horizontal plane (X/Z); Y rides along for transforms.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the euclidean distance between two points.
func (v Vec3) DistanceTo(o Vec3) float64 {
	return v.Sub(o).Length()
}

// MaxAbsComponent returns the largest absolute component. Bounding size is
// derived from this so a stretched entity lands in the right category.
func (v Vec3) MaxAbsComponent() float64 {
	m := math.Abs(v.X)
	if a := math.Abs(v.Y); a > m {
		m = a
	}
	if a := math.Abs(v.Z); a > m {
		m = a
	}
	return m
}

// AlmostEqual compares component-wise within Epsilon.
func (v Vec3) AlmostEqual(o Vec3) bool {
	return math.Abs(v.X-o.X) < Epsilon &&
		math.Abs(v.Y-o.Y) < Epsilon &&
		math.Abs(v.Z-o.Z) < Epsilon
}
