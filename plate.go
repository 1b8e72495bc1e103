package fiducube

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf/glbuild"
)

// TextMode selects how a plate label is produced.
type TextMode uint8

const (
	TextNone TextMode = iota
	// TextEmboss raises the label with the marker color.
	TextEmboss
	// TextEngrave cuts the label into the plate base.
	TextEngrave
)

func (m TextMode) String() string {
	switch m {
	case TextNone:
		return "none"
	case TextEmboss:
		return "emboss"
	case TextEngrave:
		return "engrave"
	}
	return "textmode?"
}

func (m TextMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *TextMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*m = TextNone
	case "emboss":
		*m = TextEmboss
	case "engrave":
		*m = TextEngrave
	default:
		return fmt.Errorf("unknown text mode %q", b)
	}
	return nil
}

// PlateOptions selects the declared plate variants.
type PlateOptions struct {
	// Plug must match the slot variant the cube was built with.
	Plug  SlotVariant `yaml:"plug"`
	Bezel bool        `yaml:"bezel"`
	Text  TextMode    `yaml:"text"`
}

// Label is a 2D text shape placed in plate coordinates.
// The zero value means no label.
type Label struct {
	Text  string
	Shape glbuild.Shader2D
}

// PlateParts are the printable parts of one plate. Combined is the union of
// the same Base and Marker values.
type PlateParts struct {
	Base     Solid
	Marker   Solid
	Combined Solid
}

// Plate part names. Marker plates append "_id<N>".
const (
	PlateBaseName     = "plate_base"
	PlateMarkerName   = "plate_marker"
	PlateCombinedName = "plate_combined"
)

// TextBand returns the rectangle, in plate coordinates, a label should be
// fitted into: centered in the quiet zone under the marker and kept clear of
// the plate edges.
func TextBand(dims DerivedDimensions) ms2.Box {
	plate := float32(dims.PlateWidth)
	cy := float32(dims.QuietZone / 2)
	th := float32(dims.TextHeight)
	return ms2.Box{
		Min: ms2.Vec{X: textBandMargin, Y: cy - th/2},
		Max: ms2.Vec{X: plate - textBandMargin, Y: cy + th/2},
	}
}

// PlateOutline returns the plate footprint in plate coordinates.
func PlateOutline(dims DerivedDimensions) ms2.Box {
	plate := float32(dims.PlateWidth)
	return ms2.Box{Max: ms2.Vec{X: plate, Y: plate}}
}

// MarkerArea returns the square covered by the marker grid in plate
// coordinates.
func MarkerArea(dims DerivedDimensions) ms2.Box {
	qz := float32(dims.QuietZone)
	mw := float32(dims.MarkerWidth)
	return ms2.Box{Min: ms2.Vec{X: qz, Y: qz}, Max: ms2.Vec{X: qz + mw, Y: qz + mw}}
}

func checkLabel(dims DerivedDimensions, label Label) error {
	const tol = 1e-4
	bb := label.Shape.Bounds()
	outline := PlateOutline(dims)
	if !boxContains2(outline, bb, tol) {
		return &TextBoundsError{Text: label.Text, Bounds: bb, Allowed: outline, Reason: "exceeds plate"}
	}
	if boxOverlap2(bb, MarkerArea(dims), tol) {
		return &TextBoundsError{Text: label.Text, Bounds: bb, Allowed: TextBand(dims), Reason: "overlaps marker area"}
	}
	return nil
}

// BuildPlateBase assembles the plate plug with its optional bezel, and the
// label when engraving. Plate coordinates put the plug in x,y ∈ [0,plate]
// and z ∈ [0,thickness], the narrow end of a mitered plug at z=0.
func (a *Assembler) BuildPlateBase(name string, dims DerivedDimensions, opts PlateOptions, label Label) (Solid, error) {
	b := &a.Builder
	plate := float32(dims.PlateWidth)
	d := float32(dims.PlateThickness)
	c := plate / 2
	if label.Shape != nil {
		if err := checkLabel(dims, label); err != nil {
			return Solid{}, err
		}
	}

	var plug Solid
	var err error
	switch opts.Plug {
	case SlotMitered:
		m := float32(dims.MiterAmount)
		plug, err = b.TaperedPrism("plug", Square(plate).Inset(m), Square(plate), d, FaceTop, ms3.Vec{X: c, Y: c, Z: d / 2})
	case SlotFlatLedge:
		plug, err = b.Box("plug", ms3.Vec{X: plate, Y: plate, Z: d}, ms3.Vec{X: c, Y: c, Z: d / 2})
	default:
		err = fmt.Errorf("unknown plug variant %d", opts.Plug)
	}
	if err != nil {
		return Solid{}, err
	}
	var steps []Step
	if opts.Bezel && dims.BezelThickness > 0 {
		bw := float32(dims.BezelWidth)
		bt := float32(dims.BezelThickness)
		bezel, err := b.Box("bezel", ms3.Vec{X: bw, Y: bw, Z: bt}, ms3.Vec{X: c, Y: c, Z: d - bt/2})
		if err != nil {
			return Solid{}, err
		}
		steps = append(steps, Union(bezel))
	}
	if opts.Text == TextEngrave && label.Shape != nil {
		depth := float32(dims.TextDepth)
		text, err := b.Extrude("label_"+label.Text, label.Shape, d-depth, d+b.overcut())
		if err != nil {
			return Solid{}, err
		}
		steps = append(steps, Subtract(text))
	}
	if len(steps) == 0 {
		plug.Name = name
		return plug, nil
	}
	return a.Engine.Combine(name, plug, steps...)
}

// BuildPlate assembles the base, marker overlay and combined parts of a
// marker plate. Raised cells rise from the plug top; grid rows map to plate
// y as y = plate − v so the marker reads unmirrored from outside the cube.
func (a *Assembler) BuildPlate(suffix string, dims DerivedDimensions, opts PlateOptions, grid CellGrid, label Label) (PlateParts, error) {
	b := &a.Builder
	if label.Shape != nil && opts.Text == TextNone {
		label = Label{}
	}
	base, err := a.BuildPlateBase(PlateBaseName+suffix, dims, opts, label)
	if err != nil {
		return PlateParts{}, err
	}

	plate := float32(dims.PlateWidth)
	d := float32(dims.PlateThickness)
	h := float32(dims.CellHeight)
	w := b.weld()
	// Cells grow by the weld so neighbours overlap and sink into the plug.
	var cells []Solid
	for _, cell := range grid.Cells {
		if !cell.Raised {
			continue
		}
		footprint := ms2.Box{
			Min: ms2.Vec{X: float32(cell.U0) - w, Y: plate - float32(cell.V1) - w},
			Max: ms2.Vec{X: float32(cell.U1) + w, Y: plate - float32(cell.V0) + w},
		}
		s, err := b.CellExtrusion(fmt.Sprintf("cell_r%dc%d", cell.Row, cell.Col), footprint, d-w, h+w)
		if err != nil {
			return PlateParts{}, err
		}
		cells = append(cells, s)
	}
	if opts.Text == TextEmboss && label.Shape != nil {
		text, err := b.Extrude("label_"+label.Text, label.Shape, d-w, d+float32(dims.TextDepth))
		if err != nil {
			return PlateParts{}, err
		}
		cells = append(cells, text)
	}
	if len(cells) == 0 {
		return PlateParts{}, errors.New("marker has no raised cells")
	}
	steps := make([]Step, len(cells)-1)
	for i, s := range cells[1:] {
		steps[i] = Union(s)
	}
	marker, err := a.Engine.Combine(PlateMarkerName+suffix, cells[0], steps...)
	if err != nil {
		return PlateParts{}, err
	}
	combined, err := a.Engine.Combine(PlateCombinedName+suffix, base, Union(marker))
	if err != nil {
		return PlateParts{}, err
	}
	return PlateParts{Base: base, Marker: marker, Combined: combined}, nil
}
