package fiducube

// Cell is one square of the marker grid. Its rectangle is given in marker
// image coordinates measured from the top-left plate corner: U grows to the
// right and V grows downward.
type Cell struct {
	Row, Col int
	Raised   bool
	U0, V0   float64
	U1, V1   float64
}

// CellGrid is an N×N marker bit matrix laid out on the plate.
type CellGrid struct {
	N         int
	Pitch     float64
	QuietZone float64
	// Cells in row major order, row 0 being the top edge of the marker.
	Cells []Cell
}

// NewCellGrid lays out bits on the plate described by dims. Row 0 of bits is
// the top edge of the marker as seen from outside the cube and true marks a
// raised (dark) cell. bits must be exactly dims.GridCells square.
func NewCellGrid(bits [][]bool, dims DerivedDimensions) (CellGrid, error) {
	n := dims.GridCells
	if len(bits) != n {
		cols := 0
		if len(bits) > 0 {
			cols = len(bits[0])
		}
		return CellGrid{}, &GridSizeError{Want: n, Rows: len(bits), Cols: cols}
	}
	for _, row := range bits {
		if len(row) != n {
			return CellGrid{}, &GridSizeError{Want: n, Rows: len(bits), Cols: len(row)}
		}
	}
	if dims.CellPitch <= 0 {
		return CellGrid{}, &ParamError{Field: "cell_pitch", Value: dims.CellPitch, Reason: "must be positive"}
	}
	g := CellGrid{
		N:         n,
		Pitch:     dims.CellPitch,
		QuietZone: dims.QuietZone,
		Cells:     make([]Cell, 0, n*n),
	}
	for r, row := range bits {
		for c, raised := range row {
			g.Cells = append(g.Cells, Cell{
				Row:    r,
				Col:    c,
				Raised: raised,
				U0:     g.edge(c),
				U1:     g.edge(c + 1),
				V0:     g.edge(r),
				V1:     g.edge(r + 1),
			})
		}
	}
	return g, nil
}

// edge returns the coordinate of grid line i. Both sides of a cell come from
// this function so neighbouring cells share bit-identical edges.
func (g CellGrid) edge(i int) float64 {
	return g.QuietZone + float64(i)*g.Pitch
}

// At returns the cell at row r and column c.
func (g CellGrid) At(r, c int) Cell {
	return g.Cells[r*g.N+c]
}

// Raised returns the raised cells in row major order.
func (g CellGrid) Raised() []Cell {
	var raised []Cell
	for _, c := range g.Cells {
		if c.Raised {
			raised = append(raised, c)
		}
	}
	return raised
}

// MarkerWidth returns the side of the square spanned by the grid.
func (g CellGrid) MarkerWidth() float64 {
	return g.edge(g.N) - g.edge(0)
}
