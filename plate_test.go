package fiducube

import (
	"errors"
	"testing"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf"
)

func rectLabel(t *testing.T, text string, box ms2.Box) Label {
	t.Helper()
	bld := gsdf.Builder{NoDimensionPanic: true}
	sz := box.Size()
	c := box.Center()
	s := bld.Translate2D(bld.NewRectangle(sz.X, sz.Y), c.X, c.Y)
	if err := bld.Err(); err != nil {
		t.Fatal(err)
	}
	return Label{Text: text, Shape: s}
}

func cellCenter(dims DerivedDimensions, c Cell, z float32) ms3.Vec {
	plate := float32(dims.PlateWidth)
	return ms3.Vec{
		X: float32(c.U0+c.U1) / 2,
		Y: plate - float32(c.V0+c.V1)/2,
		Z: z,
	}
}

func TestBuildPlateCells(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	n := dims.GridCells
	bits := make([][]bool, n)
	for r := range bits {
		bits[r] = make([]bool, n)
	}
	bits[0][n-1] = true // Top right corner only.
	grid, err := NewCellGrid(bits, dims)
	if err != nil {
		t.Fatal(err)
	}
	var a Assembler
	parts, err := a.BuildPlate(MarkerSuffix(7), dims, PlateOptions{Plug: SlotMitered, Bezel: true}, grid, Label{})
	if err != nil {
		t.Fatal(err)
	}
	if parts.Base.Name != "plate_base_id7" || parts.Marker.Name != "plate_marker_id7" || parts.Combined.Name != "plate_combined_id7" {
		t.Errorf("unexpected names %q %q %q", parts.Base.Name, parts.Marker.Name, parts.Combined.Name)
	}
	d := float32(dims.PlateThickness)
	top := d + float32(dims.CellHeight)/2
	plate := float32(dims.PlateWidth)
	raised := grid.At(0, n-1)
	flat := grid.At(n-1, 0)
	p := cellCenter(dims, raised, top)
	if p.X < plate/2 || p.Y < plate/2 {
		t.Fatalf("top right cell mapped to %v", p)
	}
	checkProbes(t, parts.Marker, []probePoint{
		{"raised cell", p, true},
		{"flat cell", cellCenter(dims, flat, top), false},
		{"above cell", cellCenter(dims, raised, d+float32(dims.CellHeight)+0.1), false},
	})
	checkProbes(t, parts.Base, []probePoint{
		{"plug center", ms3.Vec{X: plate / 2, Y: plate / 2, Z: d / 2}, true},
		{"bezel overhang", ms3.Vec{X: -0.3, Y: plate / 2, Z: d - 0.1}, true},
		{"below bezel", ms3.Vec{X: -0.3, Y: plate / 2, Z: d / 4}, false},
		{"mitered narrow end", ms3.Vec{X: 0.5, Y: plate / 2, Z: 0.1}, false},
		{"no cells on base", p, false},
	})

	// Combined is the union of the same base and marker values.
	pts := ms3.AppendGrid(nil, parts.Combined.Bounds(), 12, 12, 6)
	base := evalSolid(t, parts.Base, pts...)
	marker := evalSolid(t, parts.Marker, pts...)
	combined := evalSolid(t, parts.Combined, pts...)
	for i := range pts {
		want := base[i]
		if marker[i] < want {
			want = marker[i]
		}
		if combined[i] != want {
			t.Fatalf("combined %g at %v, want min(base,marker)=%g", combined[i], pts[i], want)
		}
	}
}

func TestBuildPlateFlatPlug(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	var a Assembler
	base, err := a.BuildPlateBase(PlateBaseName, dims, PlateOptions{Plug: SlotFlatLedge}, Label{})
	if err != nil {
		t.Fatal(err)
	}
	plate := float32(dims.PlateWidth)
	checkProbes(t, base, []probePoint{
		{"straight plug edge", ms3.Vec{X: 0.5, Y: plate / 2, Z: 0.1}, true},
		{"no bezel", ms3.Vec{X: -0.3, Y: plate / 2, Z: float32(dims.PlateThickness) - 0.1}, false},
	})
	if base.Name != PlateBaseName {
		t.Errorf("template named %q", base.Name)
	}
}

func TestBuildPlateText(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	grid, err := NewCellGrid(checkerBits(dims.GridCells), dims)
	if err != nil {
		t.Fatal(err)
	}
	band := TextBand(dims)
	// A label shrunk inside the band.
	c := band.Center()
	box := ms2.Box{Min: ms2.Vec{X: c.X - 10, Y: band.Min.Y}, Max: ms2.Vec{X: c.X + 10, Y: band.Max.Y}}
	label := rectLabel(t, "ID 3", box)
	d := float32(dims.PlateThickness)
	depth := float32(dims.TextDepth)
	var a Assembler

	parts, err := a.BuildPlate(MarkerSuffix(3), dims, PlateOptions{Plug: SlotMitered, Text: TextEngrave}, grid, label)
	if err != nil {
		t.Fatal(err)
	}
	checkProbes(t, parts.Base, []probePoint{
		{"engraved label", ms3.Vec{X: c.X, Y: c.Y, Z: d - depth/2}, false},
		{"under engraving", ms3.Vec{X: c.X, Y: c.Y, Z: (d - depth) / 2}, true},
	})

	parts, err = a.BuildPlate(MarkerSuffix(3), dims, PlateOptions{Plug: SlotMitered, Text: TextEmboss}, grid, label)
	if err != nil {
		t.Fatal(err)
	}
	checkProbes(t, parts.Marker, []probePoint{
		{"embossed label", ms3.Vec{X: c.X, Y: c.Y, Z: d + depth/2}, true},
	})
	checkProbes(t, parts.Base, []probePoint{
		{"base under emboss", ms3.Vec{X: c.X, Y: c.Y, Z: d - depth/2}, true},
	})
}

func TestBuildPlateTextOutOfBounds(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	grid, err := NewCellGrid(checkerBits(dims.GridCells), dims)
	if err != nil {
		t.Fatal(err)
	}
	marker := MarkerArea(dims)
	plate := float32(dims.PlateWidth)
	c := marker.Center()
	for _, test := range []struct {
		name string
		box  ms2.Box
	}{
		{"on marker", ms2.Box{Min: ms2.Vec{X: c.X - 5, Y: c.Y - 2}, Max: ms2.Vec{X: c.X + 5, Y: c.Y + 2}}},
		{"past plate edge", ms2.Box{Min: ms2.Vec{X: plate - 3, Y: 1}, Max: ms2.Vec{X: plate + 3, Y: 4}}},
		{"touching into marker", ms2.Box{Min: ms2.Vec{X: 30, Y: marker.Min.Y - 2}, Max: ms2.Vec{X: 40, Y: marker.Min.Y + 0.5}}},
	} {
		var a Assembler
		label := rectLabel(t, test.name, test.box)
		_, err := a.BuildPlate("", dims, PlateOptions{Text: TextEmboss}, grid, label)
		if !errors.Is(err, ErrTextOutOfBounds) {
			t.Errorf("%s: want ErrTextOutOfBounds, got %v", test.name, err)
		}
	}
}
