// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dsp

// Point is a 2-D point in (energy, PSD) space.
type Point struct {
	X, Y float64
}

// BoundingBox is an axis-aligned box, with Top-Left holding the lower X
// and higher Y, and BottomRight holding the higher X and lower Y,
// matching the reference pre-filter's half-open convention.
type BoundingBox struct {
	TopLeft     Point
	BottomRight Point
}

// ComputeBoundingBox returns the smallest BoundingBox enclosing polygon.
func ComputeBoundingBox(polygon []Point) BoundingBox {
	if len(polygon) == 0 {
		return BoundingBox{}
	}
	bb := BoundingBox{TopLeft: polygon[0], BottomRight: polygon[0]}
	for _, p := range polygon[1:] {
		if p.X < bb.TopLeft.X {
			bb.TopLeft.X = p.X
		}
		if p.X > bb.BottomRight.X {
			bb.BottomRight.X = p.X
		}
		if p.Y > bb.TopLeft.Y {
			bb.TopLeft.Y = p.Y
		}
		if p.Y < bb.BottomRight.Y {
			bb.BottomRight.Y = p.Y
		}
	}
	return bb
}

// InBoundingBox reports whether p falls in bb, half-open on the high
// edges: x in [left,right), y in [bottom,top).
func InBoundingBox(p Point, bb BoundingBox) bool {
	return bb.TopLeft.X <= p.X && p.X < bb.BottomRight.X &&
		bb.BottomRight.Y <= p.Y && p.Y < bb.TopLeft.Y
}

// isLeft tests whether P is left of, on, or right of the line through
// p0 and p1: >0 left, =0 on, <0 right.
func isLeft(p0, p1, p Point) float64 {
	return (p1.X-p0.X)*(p.Y-p0.Y) - (p.X-p0.X)*(p1.Y-p0.Y)
}

// WindingNumber computes the winding number of the closed polygon
// around p. polygon must be closed, i.e. polygon[len(polygon)-1] ==
// polygon[0]; the winding number is zero iff p is strictly outside.
func WindingNumber(p Point, polygon []Point) int {
	wn := 0
	for i := 0; i+1 < len(polygon); i++ {
		v0, v1 := polygon[i], polygon[i+1]
		if v0.Y <= p.Y {
			if v1.Y > p.Y && isLeft(v0, v1, p) > 0 {
				wn++
			}
		} else {
			if v1.Y <= p.Y && isLeft(v0, v1, p) < 0 {
				wn--
			}
		}
	}
	return wn
}

// ClosePolygon returns polygon with its first vertex appended at the
// end, satisfying the WindingNumber closure requirement, unless it is
// already closed or empty.
func ClosePolygon(polygon []Point) []Point {
	if len(polygon) == 0 {
		return polygon
	}
	if polygon[len(polygon)-1] == polygon[0] {
		return polygon
	}
	out := make([]Point, len(polygon)+1)
	copy(out, polygon)
	out[len(polygon)] = polygon[0]
	return out
}

// InPolygon combines the bounding-box pre-filter with the winding
// number test: p must pass both to be considered inside.
func InPolygon(p Point, polygon []Point, bb BoundingBox) bool {
	if !InBoundingBox(p, bb) {
		return false
	}
	return WindingNumber(p, polygon) != 0
}
