package objectdetection

import (
	"image"
	"sort"

	"github.com/samber/lo"
)

// Postprocessor defines a function that filters/modifies on an incoming batch of Detections.
type Postprocessor func(Batch) Batch

// NewAreaFilter returns a function that filters out detections below a certain area.
func NewAreaFilter(area int) Postprocessor {
	return func(in Batch) Batch {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.Area() >= area
		})
	}
}

// NewScoreFilter returns a function that filters out detections below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in Batch) Batch {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.Score >= conf
		})
	}
}

// NewClassFilter keeps only detections of the given class.
func NewClassFilter(classID int) Postprocessor {
	return func(in Batch) Batch {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.ClassID == classID
		})
	}
}

// NewNMSFilter greedily keeps the highest scoring boxes, dropping any box that overlaps an
// already kept one by more than `iou`.
func NewNMSFilter(iou float64) Postprocessor {
	return func(in Batch) Batch {
		sorted := make(Batch, len(in))
		copy(sorted, in)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Score > sorted[j].Score
		})

		kept := make(Batch, 0, len(sorted))
		for _, d := range sorted {
			overlaps := lo.ContainsBy(kept, func(k Detection) bool {
				return IOU(k.Box, d.Box) > iou
			})
			if !overlaps {
				kept = append(kept, d)
			}
		}
		return kept
	}
}

// IOU is the intersection over union of two rectangles.
func IOU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
