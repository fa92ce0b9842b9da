package facematch

import "image"

// ComputeIoU calculates Intersection over Union between two face rectangles.
func ComputeIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0 // No intersection
	}

	intersection := area(inter)
	union := area(a) + area(b) - intersection
	if union <= 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// LargestRect returns the detection with the biggest area.
// Ties keep the first detection. ok is false when rects holds no non-empty rectangle.
func LargestRect(rects []image.Rectangle) (best image.Rectangle, ok bool) {
	for _, r := range rects {
		if r.Empty() {
			continue
		}
		if !ok || area(r) > area(best) {
			best = r
			ok = true
		}
	}
	return best, ok
}

// SquareCrop grows r to a square around its center and clamps it to bounds.
// The result may be non-square when the face sits at the frame edge.
func SquareCrop(r, bounds image.Rectangle) image.Rectangle {
	side := max(r.Dx(), r.Dy())
	cx := r.Min.X + r.Dx()/2
	cy := r.Min.Y + r.Dy()/2

	sq := image.Rect(cx-side/2, cy-side/2, cx-side/2+side, cy-side/2+side)
	return sq.Intersect(bounds)
}

// SameFace reports whether two detections in consecutive frames overlap enough
// to be treated as the same face.
func SameFace(prev, cur image.Rectangle, minIoU float64) bool {
	return ComputeIoU(prev, cur) >= minIoU
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
