package math

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrDegeneratePolygon = errors.New("polygon is degenerate or self-intersecting")

// SignedArea returns the shoelace area of the polygon. Positive means the
// points wind counter-clockwise.
func SignedArea(points []mgl32.Vec2) float32 {
	var area float32
	for i := range points {
		a := points[i]
		b := points[(i+1)%len(points)]
		area += a.X()*b.Y() - b.X()*a.Y()
	}
	return area * 0.5
}

func cross(a, b, c mgl32.Vec2) float32 {
	return (b.X()-a.X())*(c.Y()-b.Y()) - (b.Y()-a.Y())*(c.X()-b.X())
}

func pointInTriangle(p, a, b, c mgl32.Vec2) bool {
	d1 := cross(a, b, p)
	d2 := cross(b, c, p)
	d3 := cross(c, a, p)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

// Triangulate splits a simple polygon into triangles by ear clipping. The
// returned indices point into points and every triangle is counter-clockwise.
func Triangulate(points []mgl32.Vec2) ([]uint32, error) {
	if len(points) < 3 {
		return nil, ErrDegeneratePolygon
	}
	area := SignedArea(points)
	if area == 0 {
		return nil, ErrDegeneratePolygon
	}

	remaining := make([]int, len(points))
	for i := range remaining {
		if area > 0 {
			remaining[i] = i
		} else {
			remaining[i] = len(points) - 1 - i
		}
	}

	indices := make([]uint32, 0, (len(points)-2)*3)
	for len(remaining) > 3 {
		clipped := false
		m := len(remaining)
		for i := 0; i < m; i++ {
			prev := remaining[(i+m-1)%m]
			cur := remaining[i]
			next := remaining[(i+1)%m]
			a, b, c := points[prev], points[cur], points[next]

			turn := cross(a, b, c)
			if turn == 0 {
				// collinear vertex, drop it without emitting a triangle
				remaining = append(remaining[:i], remaining[i+1:]...)
				clipped = true
				break
			}
			if turn < 0 {
				continue
			}
			ear := true
			for _, j := range remaining {
				if j == prev || j == cur || j == next {
					continue
				}
				if pointInTriangle(points[j], a, b, c) {
					ear = false
					break
				}
			}
			if !ear {
				continue
			}
			indices = append(indices, uint32(prev), uint32(cur), uint32(next))
			remaining = append(remaining[:i], remaining[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, ErrDegeneratePolygon
		}
	}
	if cross(points[remaining[0]], points[remaining[1]], points[remaining[2]]) != 0 {
		indices = append(indices, uint32(remaining[0]), uint32(remaining[1]), uint32(remaining[2]))
	}
	if len(indices) == 0 {
		return nil, ErrDegeneratePolygon
	}
	return indices, nil
}
