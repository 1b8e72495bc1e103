package fiducube

import (
	"fmt"
	"math"

	"github.com/soypat/geometry/ms3"
)

// SlotVariant selects the cross section of a slot cavity and its plate plug.
type SlotVariant uint8

const (
	// SlotMitered tapers the cavity walls from the slot opening down to a
	// narrower floor. The plate plug carries the same taper so the slot self
	// centers the plate and hides the seam.
	SlotMitered SlotVariant = iota
	// SlotFlatLedge cuts a straight walled pocket.
	SlotFlatLedge
)

func (v SlotVariant) String() string {
	switch v {
	case SlotMitered:
		return "mitered"
	case SlotFlatLedge:
		return "flat"
	}
	return "variant?"
}

func (v SlotVariant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *SlotVariant) UnmarshalText(b []byte) error {
	switch string(b) {
	case "mitered", "miter":
		*v = SlotMitered
	case "flat", "flat-ledge":
		*v = SlotFlatLedge
	default:
		return fmt.Errorf("unknown slot variant %q", b)
	}
	return nil
}

// FaceSlotSpec describes the slot cut into one face. Open only applies to
// the top face and replaces the slot floor with a through opening.
type FaceSlotSpec struct {
	Face    Face
	Variant SlotVariant
	Open    bool
}

// CubeOptions selects the declared variants of the cube shell.
type CubeOptions struct {
	Slots SlotVariant `yaml:"slots"`
	// OpenTop replaces the top slot floor with a through opening supported
	// from below by a perimeter ramp.
	OpenTop bool `yaml:"open_top"`
	// OpenBottom removes the bottom wall inside a rim so the shell prints
	// without internal supports.
	OpenBottom bool `yaml:"open_bottom"`
}

// FaceSlots returns the slot of each slotted face in assembly order.
func (o CubeOptions) FaceSlots() []FaceSlotSpec {
	specs := make([]FaceSlotSpec, len(SlotFaces))
	for i, f := range SlotFaces {
		specs[i] = FaceSlotSpec{Face: f, Variant: o.Slots, Open: f == FaceTop && o.OpenTop}
	}
	return specs
}

// Assembler builds the cube and plates out of primitives.
// It is safe for concurrent use when its Engine is.
type Assembler struct {
	Builder Builder
	Engine  Engine
}

// CubePartName is the name of the assembled cube shell.
const CubePartName = "cube_with_slots"

// BuildCube assembles the cube shell. Additive features go in first and all
// slot cavities are cut last so nothing can fill a mating surface. The
// result rests on z=0 and is centered on the Z axis.
func (a *Assembler) BuildCube(dims DerivedDimensions, opts CubeOptions) (Solid, error) {
	b := &a.Builder
	edge := float32(dims.CubeEdge)
	half := edge / 2
	wall := float32(dims.WallThickness)
	span := float32(dims.InteriorSpan)
	oc := b.overcut()

	outer, err := b.Box("outer_box", ms3.Vec{X: edge, Y: edge, Z: edge}, ms3.Vec{})
	if err != nil {
		return Solid{}, err
	}
	interior, err := b.Box("interior", ms3.Vec{X: span, Y: span, Z: span}, ms3.Vec{})
	if err != nil {
		return Solid{}, err
	}
	steps := []Step{Subtract(interior)}

	if opts.OpenBottom {
		if dims.BottomRim < dims.WallThickness {
			return Solid{}, &ParamError{Field: "bottom_rim", Value: dims.BottomRim, Reason: "open bottom rim must be at least the wall thickness"}
		}
		inner := edge - 2*float32(dims.BottomRim)
		hole, err := b.FaceBox("bottom_opening", FaceBottom, Square(inner), half-wall-oc, half+oc)
		if err != nil {
			return Solid{}, err
		}
		steps = append(steps, Subtract(hole))
	}

	if dims.RoofExtra > 0 {
		thickener, err := a.roofThickener(dims, opts)
		if err != nil {
			return Solid{}, err
		}
		steps = append(steps, Union(thickener))
	}

	if opts.OpenTop {
		if dims.RampRun <= 0 {
			return Solid{}, &ParamError{Field: "ramp_start_inset", Value: dims.RampStartInset, Reason: "no room for the open top ramp"}
		}
		target := dims.SlotFloor()
		ramp, err := b.PerimeterRamp("top_ramp", RampSpec{
			Footprint:  dims.InteriorSpan,
			Inner:      dims.TopOpening,
			StartInset: dims.RampStartInset,
			Start:      target - dims.RampRise,
			Rise:       dims.RampRise,
			Target:     target,
		})
		if err != nil {
			return Solid{}, err
		}
		steps = append(steps, Union(ramp))
	}

	for _, spec := range opts.FaceSlots() {
		cavity, err := a.slotCavity(dims, spec)
		if err != nil {
			return Solid{}, err
		}
		steps = append(steps, Subtract(cavity))
		if spec.Open {
			opening, err := a.topOpening(dims)
			if err != nil {
				return Solid{}, err
			}
			steps = append(steps, Subtract(opening))
		}
	}

	shell, err := a.Engine.Combine(CubePartName, outer, steps...)
	if err != nil {
		return Solid{}, err
	}
	return b.Translate(CubePartName, shell, ms3.Vec{Z: half})
}

// slotCavity returns the cutter of the slot in spec.Face.
func (a *Assembler) slotCavity(dims DerivedDimensions, spec FaceSlotSpec) (Solid, error) {
	b := &a.Builder
	name := "slot_" + spec.Face.String()
	half := float32(dims.CubeEdge / 2)
	depth := float32(dims.SlotDepth)
	slot := Square(float32(dims.SlotWidth))
	switch spec.Variant {
	case SlotMitered:
		return b.MiterCutter(name, spec.Face, slot, float32(dims.MiterAmount), depth, half)
	case SlotFlatLedge:
		return b.FaceBox(name, spec.Face, slot, half-depth, half+b.overcut())
	}
	return Solid{}, fmt.Errorf("%s: unknown slot variant %d", name, spec.Variant)
}

// topOpening returns the through cut that removes the top slot floor inside
// its ledge. It only reaches down through the roof so the ramp below is kept.
func (a *Assembler) topOpening(dims DerivedDimensions) (Solid, error) {
	b := &a.Builder
	oc := b.overcut()
	half := float32(dims.CubeEdge / 2)
	floor := float32(dims.SlotFloor())
	bottom := half - float32(dims.WallThickness) - oc
	return b.FaceBox("top_opening", FaceTop, Square(float32(dims.TopOpening)), bottom, floor+oc)
}

// topSlotRegion returns the column under the top slot that additive roof
// features must stay out of. It spans from below the roof thickener up to
// the top face, as wide as the slot or, for an open top, its through opening.
func topSlotRegion(dims DerivedDimensions, opts CubeOptions) ms3.Box {
	w := float32(dims.SlotWidth) / 2
	if opts.OpenTop {
		w = float32(dims.TopOpening) / 2
	}
	top := float32(dims.CubeEdge / 2)
	bottom := float32(dims.CubeEdge/2 - dims.WallThickness - dims.RoofExtra - dims.AtticDrop)
	return ms3.Box{Min: ms3.Vec{X: -w, Y: -w, Z: bottom}, Max: ms3.Vec{X: w, Y: w, Z: top}}
}

// roofThickener returns the slab reinforcing the roof from inside, with its
// chamfered attic support ring, cleared from the top slot keepout.
func (a *Assembler) roofThickener(dims DerivedDimensions, opts CubeOptions) (Solid, error) {
	b := &a.Builder
	weld := b.weld()
	half := float32(dims.CubeEdge / 2)
	wall := float32(dims.WallThickness)
	extra := float32(dims.RoofExtra)
	side := float32(dims.InteriorSpan) + 2*weld

	// The slab overlaps the walls and the roof by the weld.
	slab, err := b.Box("roof_slab",
		ms3.Vec{X: side, Y: side, Z: extra + weld},
		ms3.Vec{Z: half - wall - extra/2 + weld/2})
	if err != nil {
		return Solid{}, err
	}
	var steps []Step
	if dims.AtticDrop > 0 {
		// The ring top reaches the weld into the slab so both fuse.
		top := dims.CubeEdge/2 - dims.WallThickness - dims.RoofExtra + float64(weld)
		run := dims.AtticDrop / math.Tan(radians(dims.RampSlopeDeg))
		attic, err := b.PerimeterRamp("attic_ring", RampSpec{
			Footprint:  dims.InteriorSpan,
			Inner:      dims.InteriorSpan - 2*(dims.AtticMargin+run),
			StartInset: dims.AtticMargin,
			Start:      top - dims.AtticDrop,
			Rise:       dims.AtticDrop,
			Target:     top,
		})
		if err != nil {
			return Solid{}, err
		}
		steps = append(steps, Union(attic))
	}
	keepout, err := b.KeepoutVolume("top_slot_keepout", topSlotRegion(dims, opts), float32(dims.KeepoutMargin))
	if err != nil {
		return Solid{}, err
	}
	steps = append(steps, Subtract(keepout))
	return a.Engine.Combine("roof_thickener", slab, steps...)
}
