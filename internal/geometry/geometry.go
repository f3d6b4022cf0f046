// Package geometry computes floating-element placement from selection
// rectangles, clamped to a container's visible bounds. It is purely
// arithmetic: callers own the rectangles and mount the element themselves.
package geometry

// SafetyMargin is the minimum distance kept between a placed element and
// the container edge, when the container is large enough to allow it.
const SafetyMargin = 8

// Rect is an axis-aligned rectangle in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the rectangle's right edge.
func (r Rect) Right() float64 {
	return r.Left + r.Width
}

// Bottom returns the y coordinate of the rectangle's bottom edge.
func (r Rect) Bottom() float64 {
	return r.Top + r.Height
}

// ZeroWidth reports whether the rectangle has no horizontal extent.
// Line-wrap artifacts produce such rectangles and they carry no layout
// information.
func (r Rect) ZeroWidth() bool {
	return r.Width <= 0
}

// Size is the known dimensions of the floating element to place.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a position relative to the container's top-left corner.
type Point struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Edge identifies which side of the selection box the element attaches to.
type Edge string

// Anchor edges.
const (
	EdgeTop    Edge = "top"    // element sits above the box
	EdgeBottom Edge = "bottom" // element sits below the box
	EdgeLeft   Edge = "left"   // element sits left of the box
	EdgeRight  Edge = "right"  // element sits right of the box
)

// Align positions the element along the cross-axis of the anchor edge.
type Align string

// Cross-axis alignments.
const (
	AlignStart  Align = "start"
	AlignCenter Align = "center"
	AlignEnd    Align = "end"
)

// Placement describes where the floating element goes relative to the
// selection's bounding box.
type Placement struct {
	Edge   Edge
	Align  Align
	Offset float64 // gap between the box and the element
}

// Union returns the bounding box over all non-zero-width rectangles.
// The second return value is false when no usable rectangle exists.
func Union(rects []Rect) (Rect, bool) {
	found := false

	var left, top, right, bottom float64

	for _, r := range rects {
		if r.ZeroWidth() {
			continue
		}

		if !found {
			left, top, right, bottom = r.Left, r.Top, r.Right(), r.Bottom()
			found = true

			continue
		}

		if r.Left < left {
			left = r.Left
		}

		if r.Top < top {
			top = r.Top
		}

		if r.Right() > right {
			right = r.Right()
		}

		if r.Bottom() > bottom {
			bottom = r.Bottom()
		}
	}

	if !found {
		return Rect{}, false
	}

	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}, true
}

// Calculate computes the position for a floating element of the given size,
// anchored to the union of the selection rectangles, relative to the
// container. The result is clamped so the element stays fully inside the
// container whenever the container is at least as large as the element.
func Calculate(rects []Rect, container Rect, placement Placement, size Size) Point {
	box, ok := Union(rects)
	if !ok {
		// Nothing to anchor to: park the element at the safe corner.
		return Point{
			Left: clampAxis(SafetyMargin, container.Width, size.Width),
			Top:  clampAxis(SafetyMargin, container.Height, size.Height),
		}
	}

	// Work in container-relative coordinates.
	box.Left -= container.Left
	box.Top -= container.Top

	var p Point

	switch placement.Edge {
	case EdgeTop:
		p.Top = box.Top - placement.Offset - size.Height
		p.Left = alignAxis(placement.Align, box.Left, box.Width, size.Width)
	case EdgeBottom:
		p.Top = box.Bottom() + placement.Offset
		p.Left = alignAxis(placement.Align, box.Left, box.Width, size.Width)
	case EdgeLeft:
		p.Left = box.Left - placement.Offset - size.Width
		p.Top = alignAxis(placement.Align, box.Top, box.Height, size.Height)
	case EdgeRight:
		p.Left = box.Right() + placement.Offset
		p.Top = alignAxis(placement.Align, box.Top, box.Height, size.Height)
	default:
		// Unknown edge: behave like bottom, the least obstructive default.
		p.Top = box.Bottom() + placement.Offset
		p.Left = alignAxis(placement.Align, box.Left, box.Width, size.Width)
	}

	p.Left = clampAxis(p.Left, container.Width, size.Width)
	p.Top = clampAxis(p.Top, container.Height, size.Height)

	return p
}

// alignAxis positions the element along one axis of the anchor box.
func alignAxis(align Align, boxStart, boxSpan, elemSpan float64) float64 {
	switch align {
	case AlignCenter:
		return boxStart + (boxSpan-elemSpan)/2
	case AlignEnd:
		return boxStart + boxSpan - elemSpan
	default: // AlignStart
		return boxStart
	}
}

// clampAxis keeps v within [SafetyMargin, containerSpan-elemSpan-SafetyMargin]
// when that interval exists, and within the hard bounds [0, containerSpan-elemSpan]
// otherwise. The result is never negative.
func clampAxis(v, containerSpan, elemSpan float64) float64 {
	hardMax := containerSpan - elemSpan
	if hardMax < 0 {
		hardMax = 0
	}

	lo := float64(SafetyMargin)
	hi := hardMax - SafetyMargin

	if hi < lo {
		lo, hi = 0, hardMax
	}

	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
