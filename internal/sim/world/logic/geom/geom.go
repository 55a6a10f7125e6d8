package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Cell is a quantized grid coordinate.
type Cell struct {
	X int
	Y int
}

// ConvexHull returns the hull of pts in counter-clockwise order
// (Andrew monotone chain: sort by x then y, lower + upper chains via a
// cross-product turn test). Inputs with fewer than 3 unique points
// return the unique points as-is.
func ConvexHull(pts []orb.Point) []orb.Point {
	uniq := dedupe(pts)
	if len(uniq) < 3 {
		return uniq
	}
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i][0] != uniq[j][0] {
			return uniq[i][0] < uniq[j][0]
		}
		return uniq[i][1] < uniq[j][1]
	})

	var lower []orb.Point
	for _, p := range uniq {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper []orb.Point
	for i := len(uniq) - 1; i >= 0; i-- {
		p := uniq[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	// Endpoints of each chain are shared.
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// HullArea is the shoelace area of the convex hull of pts.
// Degenerate input (<3 unique points) yields 0.
func HullArea(pts []orb.Point) float64 {
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		return 0
	}
	ring := make(orb.Ring, 0, len(hull)+1)
	ring = append(ring, hull...)
	ring = append(ring, hull[0])
	return math.Abs(planar.Area(ring))
}

// Knottiness sums, over every consecutive triple of pts, the unsigned
// angle between the incoming and outgoing movement vectors. Triples with
// a near-zero segment are skipped so a stationary sample does not count
// as a turn.
func Knottiness(pts []orb.Point) float64 {
	const eps = 1e-9
	total := 0.0
	for i := 2; i < len(pts); i++ {
		ax := pts[i-1][0] - pts[i-2][0]
		ay := pts[i-1][1] - pts[i-2][1]
		bx := pts[i][0] - pts[i-1][0]
		by := pts[i][1] - pts[i-1][1]
		la := math.Hypot(ax, ay)
		lb := math.Hypot(bx, by)
		if la < eps || lb < eps {
			continue
		}
		dot := (ax*bx + ay*by) / (la * lb)
		if dot > 1 {
			dot = 1
		} else if dot < -1 {
			dot = -1
		}
		total += math.Acos(dot)
	}
	return total
}

// RevisitStats counts occurrences per cell: the maximum single-cell
// visit count and the ratio of unique cells to buffer length.
// An empty buffer reports ratio 1 (nothing to judge yet).
func RevisitStats(cells []Cell) (maxVisits int, uniqueRatio float64) {
	if len(cells) == 0 {
		return 0, 1
	}
	counts := make(map[Cell]int, len(cells))
	for _, c := range cells {
		counts[c]++
		if counts[c] > maxVisits {
			maxVisits = counts[c]
		}
	}
	return maxVisits, float64(len(counts)) / float64(len(cells))
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func dedupe(pts []orb.Point) []orb.Point {
	seen := make(map[orb.Point]struct{}, len(pts))
	out := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
