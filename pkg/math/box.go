package math

import "math"

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max Vec3
}

// Contains reports whether p lies inside or on the box.
func (b Box) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Distance returns the distance from p to the closest point of the box.
// Points inside the box are at distance 0.
func (b Box) Distance(p Vec3) float64 {
	dx := axisDistance(p.X, b.Min.X, b.Max.X)
	dy := axisDistance(p.Y, b.Min.Y, b.Max.Y)
	dz := axisDistance(p.Z, b.Min.Z, b.Max.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func axisDistance(v, lo, hi float64) float64 {
	if v < lo {
		return lo - v
	}
	if v > hi {
		return v - hi
	}
	return 0
}
