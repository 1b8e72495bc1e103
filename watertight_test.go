package fiducube

import (
	"fmt"
	"testing"

	"github.com/soypat/fiducube/fcmesh"
)

// smallSizing shrinks the default cube so whole parts mesh quickly.
func smallSizing() SizingParameters {
	p := DefaultSizing()
	p.CubeEdge = 60
	p.DistanceMM = 600
	return p
}

// meshCheck triangulates s at a coarse resolution and fails the test unless
// the mesh is closed, manifold, consistently wound and self intersection
// free.
func meshCheck(t *testing.T, s Solid) {
	t.Helper()
	cfg := fcmesh.Config{Resolution: 0.6, EnableCaching: true}
	tris, err := fcmesh.Triangulate(s.Shape, cfg)
	if err != nil {
		t.Fatalf("%s: %v", s.Name, err)
	}
	r := cfg.Checker().Check(tris)
	if err := r.Err(); err != nil {
		t.Errorf("%s: %v (%+v)", s.Name, err, r)
	}
}

func TestCubeMeshesWatertight(t *testing.T) {
	if testing.Short() {
		t.Skip("triangulates whole cubes")
	}
	dims, err := Derive(smallSizing())
	if err != nil {
		t.Fatal(err)
	}
	for _, opts := range []CubeOptions{
		{Slots: SlotMitered},
		{Slots: SlotMitered, OpenTop: true},
		{Slots: SlotMitered, OpenBottom: true},
		{Slots: SlotMitered, OpenTop: true, OpenBottom: true},
		{Slots: SlotFlatLedge, OpenTop: true},
	} {
		var a Assembler
		cube, err := a.BuildCube(dims, opts)
		if err != nil {
			t.Fatalf("%+v: %v", opts, err)
		}
		name := fmt.Sprintf("%s_opentop=%v_openbottom=%v", opts.Slots, opts.OpenTop, opts.OpenBottom)
		t.Run(name, func(t *testing.T) {
			meshCheck(t, cube)
		})
	}
}

func TestBatchPartsMeshWatertight(t *testing.T) {
	if testing.Short() {
		t.Skip("triangulates every part of a batch")
	}
	g := testGenerator(mapBits{0: checkerBits(6)})
	g.Params = smallSizing()
	result, err := g.Generate([]int{0})
	if err != nil {
		t.Fatal(err)
	}
	if err := result.Err(); err != nil {
		t.Fatal(err)
	}
	for _, p := range result.Parts {
		t.Run(p.Name(), func(t *testing.T) {
			meshCheck(t, p.Solid)
		})
	}
}

func TestEngravedFlatPlateMeshWatertight(t *testing.T) {
	if testing.Short() {
		t.Skip("triangulates a plate")
	}
	dims, err := Derive(smallSizing())
	if err != nil {
		t.Fatal(err)
	}
	grid, err := NewCellGrid(checkerBits(dims.GridCells), dims)
	if err != nil {
		t.Fatal(err)
	}
	band := TextBand(dims)
	w := band.Size().X / 4
	band.Min.X += w
	band.Max.X -= w
	label := rectLabel(t, "ID 3", band)
	var a Assembler
	parts, err := a.BuildPlate(MarkerSuffix(3), dims, PlateOptions{Plug: SlotFlatLedge, Bezel: true, Text: TextEngrave}, grid, label)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []Solid{parts.Base, parts.Marker, parts.Combined} {
		meshCheck(t, s)
	}
}
