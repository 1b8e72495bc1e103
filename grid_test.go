package fiducube

import (
	"errors"
	"math"
	"testing"
)

func checkerBits(n int) [][]bool {
	bits := make([][]bool, n)
	for r := range bits {
		bits[r] = make([]bool, n)
		for c := range bits[r] {
			bits[r][c] = (r+c)%2 == 0
		}
	}
	return bits
}

func TestCellGridPartition(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	n := dims.GridCells
	g, err := NewCellGrid(checkerBits(n), dims)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Cells) != n*n {
		t.Fatalf("got %d cells, want %d", len(g.Cells), n*n)
	}
	var area float64
	for _, c := range g.Cells {
		if c.U1 <= c.U0 || c.V1 <= c.V0 {
			t.Fatalf("cell %d,%d is empty", c.Row, c.Col)
		}
		area += (c.U1 - c.U0) * (c.V1 - c.V0)
		if c.Col+1 < n && g.At(c.Row, c.Col+1).U0 != c.U1 {
			t.Errorf("cell %d,%d right edge not shared with neighbour", c.Row, c.Col)
		}
		if c.Row+1 < n && g.At(c.Row+1, c.Col).V0 != c.V1 {
			t.Errorf("cell %d,%d bottom edge not shared with neighbour", c.Row, c.Col)
		}
	}
	mw := dims.MarkerWidth
	if math.Abs(area-mw*mw) > 1e-9*mw*mw {
		t.Errorf("cell area %g, want marker area %g", area, mw*mw)
	}
	first, last := g.At(0, 0), g.At(n-1, n-1)
	if first.U0 != dims.QuietZone || first.V0 != dims.QuietZone {
		t.Errorf("grid does not start at the quiet zone: %g,%g", first.U0, first.V0)
	}
	if math.Abs(last.U1-(dims.QuietZone+mw)) > 1e-9 {
		t.Errorf("grid ends at %g, want %g", last.U1, dims.QuietZone+mw)
	}
	if math.Abs(g.MarkerWidth()-mw) > 1e-9 {
		t.Errorf("grid width %g, want %g", g.MarkerWidth(), mw)
	}
}

func TestCellGridOrientation(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	n := dims.GridCells
	bits := make([][]bool, n)
	for r := range bits {
		bits[r] = make([]bool, n)
	}
	bits[0][n-1] = true // Top right corner.
	g, err := NewCellGrid(bits, dims)
	if err != nil {
		t.Fatal(err)
	}
	raised := g.Raised()
	if len(raised) != 1 {
		t.Fatalf("got %d raised cells", len(raised))
	}
	c := raised[0]
	if c.Row != 0 || c.Col != n-1 {
		t.Fatalf("raised cell at %d,%d", c.Row, c.Col)
	}
	if c.V0 != dims.QuietZone {
		t.Error("row 0 must lie along the top edge of the marker")
	}
	if c.U1 <= dims.PlateWidth/2 {
		t.Error("last column must lie on the right half of the plate")
	}
}

func TestCellGridSizeMismatch(t *testing.T) {
	dims, err := Derive(DefaultSizing())
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewCellGrid(checkerBits(5), dims)
	if !errors.Is(err, ErrGridSizeMismatch) {
		t.Fatalf("5x5 against 6x6: want ErrGridSizeMismatch, got %v", err)
	}
	var gerr *GridSizeError
	if !errors.As(err, &gerr) || gerr.Want != 6 || gerr.Rows != 5 {
		t.Errorf("unexpected error detail %v", err)
	}

	ragged := checkerBits(6)
	ragged[3] = ragged[3][:4]
	_, err = NewCellGrid(ragged, dims)
	if !errors.Is(err, ErrGridSizeMismatch) {
		t.Fatalf("ragged rows: want ErrGridSizeMismatch, got %v", err)
	}
}
