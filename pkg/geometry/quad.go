package geometry

// Quad is a quadrilateral given by its corners in drawing order.
type Quad [4]Point2D

// Convex reports whether q is a strictly convex quadrilateral. Collapsed
// corners, collinear edges and self-intersecting outlines are not convex.
func (q Quad) Convex() bool {
	var sign float64
	for i := 0; i < 4; i++ {
		cross := crossProduct(q[i], q[(i+1)%4], q[(i+2)%4])
		if cross == 0 {
			return false
		}
		if sign == 0 {
			sign = cross
		} else if (cross > 0) != (sign > 0) {
			return false
		}
	}
	return true
}

// Area returns the absolute shoelace area of q.
func (q Quad) Area() float64 {
	a := windingArea(q)
	if a < 0 {
		return -a
	}
	return a
}

func windingArea(q Quad) float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += q[i].X*q[j].Y - q[j].X*q[i].Y
	}
	return sum / 2
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
