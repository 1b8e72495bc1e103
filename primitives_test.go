package fiducube

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf/gleval"
)

func evalSolid(t *testing.T, s Solid, pts ...ms3.Vec) []float32 {
	t.Helper()
	sdf, err := gleval.AssertSDF3(s.Shape)
	if err != nil {
		t.Fatal(err)
	}
	dist := make([]float32, len(pts))
	var vp gleval.VecPool
	if err := sdf.Evaluate(pts, dist, &vp); err != nil {
		t.Fatal(err)
	}
	return dist
}

func near(a, b, tol float32) bool { return math32.Abs(a-b) <= tol }

func TestTaperedPrismDistance(t *testing.T) {
	var b Builder
	s, err := b.TaperedPrism("p", Square(10), Square(20), 5, FaceTop, ms3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	const tol = 1e-5
	got := evalSolid(t, s,
		ms3.Vec{},            // center
		ms3.Vec{Z: 3},        // above top face
		ms3.Vec{X: 7.5},      // on a slanted side at mid height
		ms3.Vec{X: 8},        // outside a slanted side
		ms3.Vec{X: 5, Z: -2}, // inside near narrow end
	)
	want := []float32{-2.5, 0.5, 0, 0.5 / math32.Sqrt2, -0.5 / math32.Sqrt2}
	for i := range want {
		if !near(got[i], want[i], tol) {
			t.Errorf("point %d: distance %g, want %g", i, got[i], want[i])
		}
	}
	bb := s.Bounds()
	if bb.Min != (ms3.Vec{X: -10, Y: -10, Z: -2.5}) || bb.Max != (ms3.Vec{X: 10, Y: 10, Z: 2.5}) {
		t.Errorf("bad bounds %+v", bb)
	}
}

func TestTaperedPrismFaceAxis(t *testing.T) {
	var b Builder
	for _, face := range SlotFaces {
		s, err := b.TaperedPrism("p", Square(10), Square(20), 5, face, ms3.Vec{})
		if err != nil {
			t.Fatal(err)
		}
		n := face.Normal()
		got := evalSolid(t, s, ms3.Scale(3, n), ms3.Scale(-3, n))
		if !near(got[0], 0.5, 1e-5) || !near(got[1], 0.5, 1e-5) {
			t.Errorf("%s: distances along normal %v, want 0.5", face, got)
		}
		// The wide end faces outward.
		wide := ms3.Add(ms3.Scale(2.4, n), face.toWorld(ms3.Vec{X: 9.5}))
		narrow := ms3.Add(ms3.Scale(-2.4, n), face.toWorld(ms3.Vec{X: 9.5}))
		got = evalSolid(t, s, wide, narrow)
		if got[0] >= 0 || got[1] <= 0 {
			t.Errorf("%s: taper points the wrong way: %v", face, got)
		}
		bb := s.Bounds()
		sz := bb.Size()
		if !near(ms3.Dot(sz, ms3.AbsElem(n)), 5, 1e-6) {
			t.Errorf("%s: bounds %v not 5 thick along normal", face, sz)
		}
	}
}

func TestTaperedPrismInvalid(t *testing.T) {
	var b Builder
	s, err := b.MiterCutter("slot", FaceTop, Square(10), 4, 2, 0)
	if !errors.Is(err, ErrInvalidTaper) {
		t.Fatalf("want ErrInvalidTaper, got %v", err)
	}
	if !s.IsZero() {
		t.Error("failed taper returned geometry")
	}
	var terr *TaperError
	if !errors.As(err, &terr) || terr.Miter != 4 {
		t.Errorf("unexpected error detail %v", err)
	}

	for _, test := range []struct {
		base, top Rect
		h         float32
	}{
		{Square(2), Square(10), 1}, // miter 4, narrow half 1
		{Square(10), Square(2), 1},
		{Rect{W: 10, H: 0}, Square(10), 1},
		{Square(10), Square(10), 0},
	} {
		s, err := b.TaperedPrism("p", test.base, test.top, test.h, FaceTop, ms3.Vec{})
		if !errors.Is(err, ErrInvalidTaper) || !s.IsZero() {
			t.Errorf("%+v: want ErrInvalidTaper, got %v", test, err)
		}
	}
}

func TestTaperMatchesSlot(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	var a Assembler
	cavity, err := a.slotCavity(dims, FaceSlotSpec{Face: FaceTop, Variant: SlotMitered})
	if err != nil {
		t.Fatal(err)
	}
	plug, err := a.BuildPlateBase("plug", dims, PlateOptions{Plug: SlotMitered}, Label{})
	if err != nil {
		t.Fatal(err)
	}
	half := float32(dims.CubeEdge / 2)
	d := float32(dims.SlotDepth)
	m := float32(dims.MiterAmount)
	slot := float32(dims.SlotWidth)
	plate := float32(dims.PlateWidth)
	c := plate / 2
	for _, frac := range []float32{0.1, 0.5, 0.9} {
		depth := frac * d // Below the cube face.
		cavityHalf := slot/2 - m*depth/d
		plugHalf := plate/2 - m*depth/d
		if !near(cavityHalf-plugHalf, float32(dims.SlotWidth-dims.PlateWidth)/2, 1e-4) {
			t.Fatalf("clearance not constant at depth %g", depth)
		}
		got := evalSolid(t, cavity, ms3.Vec{X: cavityHalf, Z: half - depth})
		if !near(got[0], 0, 1e-4) {
			t.Errorf("cavity wall at depth %g off by %g", depth, got[0])
		}
		got = evalSolid(t, plug, ms3.Vec{X: c + plugHalf, Y: c, Z: d - depth})
		if !near(got[0], 0, 1e-4) {
			t.Errorf("plug wall at depth %g off by %g", depth, got[0])
		}
	}
}

func TestPerimeterRamp(t *testing.T) {
	var b Builder
	spec := RampSpec{Footprint: 100, Inner: 80, StartInset: 0, Start: 0, Rise: 10, Target: 10}
	s, err := b.PerimeterRamp("ramp", spec)
	if err != nil {
		t.Fatal(err)
	}
	got := evalSolid(t, s,
		ms3.Vec{X: 45, Z: 5}, // On the sloped surface.
		ms3.Vec{X: 48, Z: 5}, // Inside the ring.
		ms3.Vec{Z: 5},        // In the hole.
	)
	if !near(got[0], 0, 1e-4) {
		t.Errorf("ramp surface off by %g", got[0])
	}
	if got[1] >= 0 {
		t.Errorf("ring interior distance %g", got[1])
	}
	if got[2] <= 0 {
		t.Errorf("hole distance %g", got[2])
	}

	spec.Target = 10.5
	_, err = b.PerimeterRamp("ramp", spec)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("mismatched elevation: want ErrInvalidParameter, got %v", err)
	}
}

func TestKeepoutVolume(t *testing.T) {
	var b Builder
	region := ms3.Box{Min: ms3.Vec{X: -1, Y: -2, Z: 0}, Max: ms3.Vec{X: 3, Y: 2, Z: 1}}
	const margin = 0.5
	s, err := b.KeepoutVolume("keepout", region, margin)
	if err != nil {
		t.Fatal(err)
	}
	got := evalSolid(t, s, region.Min, region.Max, region.Center())
	if !near(got[0], -margin, 1e-5) || !near(got[1], -margin, 1e-5) {
		t.Errorf("region corners at %v, want %g inside", got[:2], -margin)
	}
	if got[2] >= -margin {
		t.Errorf("region center distance %g", got[2])
	}
	if _, err := b.KeepoutVolume("keepout", region, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero margin: want ErrInvalidParameter, got %v", err)
	}
}

func TestShaderNamesDistinct(t *testing.T) {
	var b Builder
	p1, _ := b.TaperedPrism("a", Square(10), Square(20), 5, FaceTop, ms3.Vec{})
	p2, _ := b.TaperedPrism("b", Square(10), Square(20), 5, FacePosX, ms3.Vec{})
	n1 := string(p1.Shape.AppendShaderName(nil))
	n2 := string(p2.Shape.AppendShaderName(nil))
	if n1 == n2 {
		t.Errorf("prisms on different axes share shader name %q", n1)
	}
	body := string(p2.Shape.AppendShaderBody(nil))
	if len(body) == 0 || body[len(body)-1] != ';' {
		t.Errorf("malformed shader body %q", body)
	}
}
