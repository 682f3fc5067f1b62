package sim

import (
	"math"

	"github.com/pthm-cable/gomc/box"
)

// rotation is a 3x3 rotation matrix in row-major order.
type rotation [9]float64

var identity = rotation{1, 0, 0, 0, 1, 0, 0, 0, 1}

// randomRotation maps three uniform deviates onto a rotation drawn
// uniformly from SO(3) through a random unit quaternion.
func randomRotation(u1, u2, u3 float64) rotation {
	s1, s2 := math.Sqrt(1-u1), math.Sqrt(u1)
	a, b := 2*math.Pi*u2, 2*math.Pi*u3
	return fromQuaternion(s1*math.Sin(a), s1*math.Cos(a), s2*math.Sin(b), s2*math.Cos(b))
}

// axisRotation returns the rotation by angle about the unit axis.
func axisRotation(axis box.Vec3, angle float64) rotation {
	s, c := math.Sin(angle/2), math.Cos(angle/2)
	return fromQuaternion(axis[0]*s, axis[1]*s, axis[2]*s, c)
}

// randomAxis maps two uniform deviates onto a point of the unit sphere.
func randomAxis(u1, u2 float64) box.Vec3 {
	z := 2*u1 - 1
	r := math.Sqrt(1 - z*z)
	phi := 2 * math.Pi * u2
	return box.Vec3{r * math.Cos(phi), r * math.Sin(phi), z}
}

func fromQuaternion(x, y, z, w float64) rotation {
	return rotation{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	}
}

func (r rotation) apply(v box.Vec3) box.Vec3 {
	return box.Vec3{
		r[0]*v[0] + r[1]*v[1] + r[2]*v[2],
		r[3]*v[0] + r[4]*v[1] + r[5]*v[2],
		r[6]*v[0] + r[7]*v[1] + r[8]*v[2],
	}
}

func add(a, b box.Vec3) box.Vec3 { return box.Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func sub(a, b box.Vec3) box.Vec3 { return box.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

// centroid returns the mean of points.
func centroid(points []box.Vec3) box.Vec3 {
	var c box.Vec3
	for _, p := range points {
		c = add(c, p)
	}
	n := float64(len(points))
	return box.Vec3{c[0] / n, c[1] / n, c[2] / n}
}
