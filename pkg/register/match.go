package register

// Point-correspondence matching between two star lists, via triangle
// similarity voting. A triangle's sorted side ratios are invariant
// under translation, rotation and uniform scale, so triangles that
// look alike in both frames vote for their vertex pairings; pairings
// with enough votes become control points for the transform fit.

import(
	"math"
	"sort"

	"github.com/obskit/ccdred/pkg/ccd"
)

type triangle struct {
	idx [3]int     // vertex indices, ordered by the side opposite them (longest first)
	r1  float64    // mid/long side ratio
	r2  float64    // short/long side ratio
}

func buildTriangles(stars []ccd.Source) []triangle {
	tris := []triangle{}
	n := len(stars)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				if t,ok := newTriangle(stars, i, j, k); ok {
					tris = append(tris, t)
				}
			}
		}
	}
	return tris
}

func newTriangle(stars []ccd.Source, i, j, k int) (triangle, bool) {
	// Side lengths: side[v] is the side opposite vertex v.
	verts := [3]int{i, j, k}
	var side [3]float64
	side[0] = dist(stars[j], stars[k])
	side[1] = dist(stars[i], stars[k])
	side[2] = dist(stars[i], stars[j])

	// Order vertices so side[0] >= side[1] >= side[2].
	order := []int{0, 1, 2}
	sort.Slice(order, func(a, b int) bool { return side[order[a]] > side[order[b]] })

	long, mid, short := side[order[0]], side[order[1]], side[order[2]]
	if long < 1e-9 || short < 1e-9 {
		return triangle{}, false // collinear or coincident stars
	}

	return triangle{
		idx: [3]int{verts[order[0]], verts[order[1]], verts[order[2]]},
		r1:  mid / long,
		r2:  short / long,
	}, true
}

func dist(a, b ccd.Source) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// matchStars pairs up the brightest maxStars of each list. Returned
// slices are index-aligned (src[i] corresponds to dst[i]).
func matchStars(frameStars, refStars []ccd.Source, maxStars int, tol float64) (src, dst [][2]float64) {
	if maxStars < 3 {
		maxStars = 3
	}
	a := clip(frameStars, maxStars)
	b := clip(refStars, maxStars)
	if len(a) < 3 || len(b) < 3 {
		return nil, nil
	}

	triA := buildTriangles(a)
	triB := buildTriangles(b)

	votes := map[[2]int]int{}
	for _,ta := range triA {
		for _,tb := range triB {
			if math.Abs(ta.r1-tb.r1) > tol || math.Abs(ta.r2-tb.r2) > tol {
				continue
			}
			// Vertices are stored in matching (side-rank) order, so
			// they pair positionally.
			for v := 0; v < 3; v++ {
				votes[[2]int{ta.idx[v], tb.idx[v]}]++
			}
		}
	}

	// Greedily accept the highest-voted pairings, one use per star.
	type pairing struct {
		ai, bi, n int
	}
	pairings := []pairing{}
	for k,n := range votes {
		pairings = append(pairings, pairing{k[0], k[1], n})
	}
	sort.Slice(pairings, func(i, j int) bool {
		if pairings[i].n != pairings[j].n {
			return pairings[i].n > pairings[j].n
		}
		if pairings[i].ai != pairings[j].ai {
			return pairings[i].ai < pairings[j].ai
		}
		return pairings[i].bi < pairings[j].bi
	})

	usedA, usedB := map[int]bool{}, map[int]bool{}
	for _,p := range pairings {
		if p.n < 2 || usedA[p.ai] || usedB[p.bi] {
			continue
		}
		usedA[p.ai] = true
		usedB[p.bi] = true
		src = append(src, [2]float64{a[p.ai].X, a[p.ai].Y})
		dst = append(dst, [2]float64{b[p.bi].X, b[p.bi].Y})
	}
	return src, dst
}

func clip(stars []ccd.Source, n int) []ccd.Source {
	if len(stars) <= n {
		return stars
	}
	return stars[:n] // detect returns brightest-first
}
