package fcmesh

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// Report summarizes the topology of a triangle mesh.
type Report struct {
	Triangles int
	// Vertices counts distinct vertices after welding.
	Vertices int
	// Degenerate triangles have near zero area or repeated vertices.
	Degenerate        int
	BoundaryEdges     int
	NonManifoldEdges  int
	MisorientedEdges  int
	SelfIntersections int
	// Volume is the signed enclosed volume in cubic millimeters.
	Volume float64
}

// Watertight reports whether every edge is shared by exactly two
// consistently wound triangles.
func (r Report) Watertight() bool {
	return r.BoundaryEdges == 0 && r.NonManifoldEdges == 0 && r.MisorientedEdges == 0
}

// ErrNotPrintable is returned by [Report.Err] for meshes that fail a check.
var ErrNotPrintable = errors.New("mesh not printable")

// Err returns nil for closed, manifold, self intersection free meshes with
// positive volume. Degenerate triangles alone do not fail the check.
func (r Report) Err() error {
	switch {
	case r.Triangles == 0:
		return fmt.Errorf("%w: empty mesh", ErrNotPrintable)
	case !r.Watertight():
		return fmt.Errorf("%w: %d boundary, %d non-manifold, %d misoriented edges", ErrNotPrintable, r.BoundaryEdges, r.NonManifoldEdges, r.MisorientedEdges)
	case r.SelfIntersections > 0:
		return fmt.Errorf("%w: %d self intersections", ErrNotPrintable, r.SelfIntersections)
	case !(r.Volume > 0):
		return fmt.Errorf("%w: enclosed volume %g", ErrNotPrintable, r.Volume)
	}
	return nil
}

// Checker inspects triangle meshes.
type Checker struct {
	// Tol is the distance under which vertices are welded and contacts are
	// not counted as intersections. Zero uses 1e-5.
	Tol float32
	// CellSize is the edge of the spatial hash cells used to find
	// intersecting triangles, usually the triangulation resolution. Zero
	// uses the largest triangle extent.
	CellSize float32
}

// Check welds vertices closer than tol and inspects the resulting mesh.
func Check(tris []ms3.Triangle, tol float32) Report {
	return Checker{Tol: tol}.Check(tris)
}

// Check inspects tris. Time and memory are linear in the triangle count
// for meshes whose triangles are about CellSize across.
func (c Checker) Check(tris []ms3.Triangle) Report {
	tol := c.Tol
	if tol <= 0 {
		tol = 1e-5
	}
	w := newWelder(tol)
	faces := make([][3]int, len(tris))
	for i, t := range tris {
		for j := range t {
			faces[i][j] = w.index(t[j])
		}
	}
	r := Report{
		Triangles: len(tris),
		Vertices:  len(w.verts),
		Volume:    signedVolume(tris),
	}
	type edgeUse struct{ forward, backward int32 }
	edges := make(map[[2]int]edgeUse, 3*len(tris)/2)
	live := faces[:0:0]
	liveTris := tris[:0:0]
	for i, f := range faces {
		if f[0] == f[1] || f[1] == f[2] || f[2] == f[0] || area(tris[i]) < tol*tol {
			r.Degenerate++
			if f[0] == f[1] || f[1] == f[2] || f[2] == f[0] {
				continue // Collapsed triangles contribute no edges.
			}
		}
		live = append(live, f)
		liveTris = append(liveTris, tris[i])
		for j := 0; j < 3; j++ {
			a, b := f[j], f[(j+1)%3]
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			use := edges[key]
			if a < b {
				use.forward++
			} else {
				use.backward++
			}
			edges[key] = use
		}
	}
	for _, use := range edges {
		switch n := use.forward + use.backward; {
		case n == 1:
			r.BoundaryEdges++
		case n > 2:
			r.NonManifoldEdges++
		case use.forward != 1:
			r.MisorientedEdges++
		}
	}
	r.SelfIntersections = countIntersections(liveTris, live, tol, c.CellSize)
	return r
}

func area(t ms3.Triangle) float32 {
	return ms3.Norm(ms3.Cross(ms3.Sub(t[1], t[0]), ms3.Sub(t[2], t[0]))) / 2
}

// welder merges vertices within tol of each other using a hash grid of
// cell size tol.
type welder struct {
	tol   float32
	verts []ms3.Vec
	grid  map[[3]int64][]int
}

func newWelder(tol float32) *welder {
	return &welder{tol: tol, grid: make(map[[3]int64][]int)}
}

func (w *welder) cell(v ms3.Vec) [3]int64 {
	return [3]int64{
		int64(math.Floor(float64(v.X / w.tol))),
		int64(math.Floor(float64(v.Y / w.tol))),
		int64(math.Floor(float64(v.Z / w.tol))),
	}
}

func (w *welder) index(v ms3.Vec) int {
	c := w.cell(v)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for _, idx := range w.grid[[3]int64{c[0] + dx, c[1] + dy, c[2] + dz}] {
					if ms3.Norm(ms3.Sub(w.verts[idx], v)) <= w.tol {
						return idx
					}
				}
			}
		}
	}
	idx := len(w.verts)
	w.verts = append(w.verts, v)
	w.grid[c] = append(w.grid[c], idx)
	return idx
}

// countIntersections counts pairs of triangles without shared vertices
// whose interiors cross. Triangles are bucketed by the hash cells their
// bounding boxes touch and each pair is tested only in the cell holding the
// minimum corner of the overlap of their boxes.
func countIntersections(tris []ms3.Triangle, faces [][3]int, tol, cell float32) int {
	if len(tris) < 2 {
		return 0
	}
	if !(cell > 0) {
		cell = maxExtent(tris)
	}
	if !(cell > 0) {
		return 0
	}
	key := func(v ms3.Vec) [3]int32 {
		return [3]int32{
			int32(math32.Floor(v.X / cell)),
			int32(math32.Floor(v.Y / cell)),
			int32(math32.Floor(v.Z / cell)),
		}
	}
	type entry struct {
		cell [3]int32
		tri  int32
	}
	boxes := make([]ms3.Box, len(tris))
	entries := make([]entry, 0, 2*len(tris))
	for i, t := range tris {
		bb := expand(triBox(t), tol)
		boxes[i] = bb
		lo, hi := key(bb.Min), key(bb.Max)
		for x := lo[0]; x <= hi[0]; x++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for z := lo[2]; z <= hi[2]; z++ {
					entries = append(entries, entry{cell: [3]int32{x, y, z}, tri: int32(i)})
				}
			}
		}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		for k := range a.cell {
			if c := cmp.Compare(a.cell[k], b.cell[k]); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.tri, b.tri)
	})
	count := 0
	for lo := 0; lo < len(entries); {
		hi := lo + 1
		for hi < len(entries) && entries[hi].cell == entries[lo].cell {
			hi++
		}
		here := entries[lo].cell
		for i := lo; i < hi; i++ {
			a := entries[i].tri
			for j := i + 1; j < hi; j++ {
				b := entries[j].tri
				ba, bb := boxes[a], boxes[b]
				if !boxesOverlap(ba, bb, 0) {
					continue
				}
				if key(ms3.MaxElem(ba.Min, bb.Min)) != here {
					continue // Tested in another cell.
				}
				if shareVertex(faces[a], faces[b]) {
					continue
				}
				if trianglesIntersect(tris[a], tris[b], tol) {
					count++
				}
			}
		}
		lo = hi
	}
	return count
}

// maxExtent returns the largest axis extent over all triangles.
func maxExtent(tris []ms3.Triangle) float32 {
	var ext float32
	for _, t := range tris {
		sz := ms3.Sub(triBox(t).Max, triBox(t).Min)
		ext = max(ext, sz.X, sz.Y, sz.Z)
	}
	return ext
}

func expand(b ms3.Box, d float32) ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: b.Min.X - d, Y: b.Min.Y - d, Z: b.Min.Z - d},
		Max: ms3.Vec{X: b.Max.X + d, Y: b.Max.Y + d, Z: b.Max.Z + d},
	}
}

func shareVertex(a, b [3]int) bool {
	for _, i := range a {
		for _, j := range b {
			if i == j {
				return true
			}
		}
	}
	return false
}

func triBox(t ms3.Triangle) ms3.Box {
	return ms3.Box{
		Min: ms3.MinElem(t[0], ms3.MinElem(t[1], t[2])),
		Max: ms3.MaxElem(t[0], ms3.MaxElem(t[1], t[2])),
	}
}

func boxesOverlap(a, b ms3.Box, tol float32) bool {
	return a.Min.X <= b.Max.X+tol && b.Min.X <= a.Max.X+tol &&
		a.Min.Y <= b.Max.Y+tol && b.Min.Y <= a.Max.Y+tol &&
		a.Min.Z <= b.Max.Z+tol && b.Min.Z <= a.Max.Z+tol
}

// trianglesIntersect reports whether an edge of either triangle pierces
// the interior of the other.
func trianglesIntersect(a, b ms3.Triangle, tol float32) bool {
	for i := 0; i < 3; i++ {
		if segmentHitsTriangle(a[i], a[(i+1)%3], b, tol) || segmentHitsTriangle(b[i], b[(i+1)%3], a, tol) {
			return true
		}
	}
	return false
}

// segmentHitsTriangle is the Möller–Trumbore ray test limited to the
// segment p0-p1. Grazing contacts within tol are not counted.
func segmentHitsTriangle(p0, p1 ms3.Vec, t ms3.Triangle, tol float32) bool {
	dir := ms3.Sub(p1, p0)
	length := ms3.Norm(dir)
	if length <= tol {
		return false
	}
	e1 := ms3.Sub(t[1], t[0])
	e2 := ms3.Sub(t[2], t[0])
	h := ms3.Cross(dir, e2)
	det := ms3.Dot(e1, h)
	if math32.Abs(det) < 1e-12 {
		return false // Parallel.
	}
	inv := 1 / det
	s := ms3.Sub(p0, t[0])
	u := inv * ms3.Dot(s, h)
	q := ms3.Cross(s, e1)
	v := inv * ms3.Dot(dir, q)
	param := inv * ms3.Dot(e2, q)
	const eps = 1e-4
	margin := tol / length
	return u > eps && v > eps && u+v < 1-eps && param > margin && param < 1-margin
}
