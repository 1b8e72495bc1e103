package fiducube

import (
	"fmt"
	"math"
)

// OversizePolicy selects what [Derive] does when the camera requires a
// marker wider than the plate can hold.
type OversizePolicy string

const (
	// OversizeFail makes Derive return a *MarkerOversizedError.
	OversizeFail OversizePolicy = "fail"
	// OversizeClamp limits the marker to the plate and flags the dimensions as clamped.
	OversizeClamp OversizePolicy = "clamp"
)

const (
	// minRampRun is the shortest horizontal ramp run worth printing.
	// Shorter ramps are dropped.
	minRampRun = 0.8
	// minTextHeight is the smallest legible label height.
	minTextHeight = 1.5
	// textBandMargin is the breathing room kept between a label and both the
	// plate edge and the marker area.
	textBandMargin = 1.0
)

// SizingParameters are the top level inputs of the cube and plate family.
// Lengths are in millimeters and angles in degrees.
type SizingParameters struct {
	// Camera model.
	ResolutionPx  int     `yaml:"resolution_px"`
	FOVDeg        float64 `yaml:"fov_deg"`
	DistanceMM    float64 `yaml:"distance_mm"`
	PixelsPerCell int     `yaml:"pixels_per_cell"`
	GridCells     int     `yaml:"grid_cells"`

	// Cube shell and slots.
	CubeEdge      float64 `yaml:"cube_edge"`
	WallThickness float64 `yaml:"wall_thickness"`
	SlotFraction  float64 `yaml:"slot_fraction"`
	SlotDepth     float64 `yaml:"slot_depth"`
	DraftDeg      float64 `yaml:"draft_deg"`
	BottomRim     float64 `yaml:"bottom_rim"`

	// Roof reinforcement and open top ramp.
	RoofExtra      float64 `yaml:"roof_extra"`
	AtticDrop      float64 `yaml:"attic_drop"`
	AtticMargin    float64 `yaml:"attic_margin"`
	KeepoutMargin  float64 `yaml:"keepout_margin"`
	RampStartInset float64 `yaml:"ramp_start_inset"`
	RampSlopeDeg   float64 `yaml:"ramp_slope_deg"`

	// Plates.
	Clearance      float64        `yaml:"clearance"`
	MarginFraction float64        `yaml:"margin_fraction"`
	CellHeight     float64        `yaml:"cell_height"`
	BezelOverhang  float64        `yaml:"bezel_overhang"`
	BezelThickness float64        `yaml:"bezel_thickness"`
	TextHeight     float64        `yaml:"text_height"`
	TextDepth      float64        `yaml:"text_depth"`
	Oversize       OversizePolicy `yaml:"oversize"`
}

// DefaultSizing returns parameters for a 150mm cube carrying 4x4 markers
// readable by a 1280px, 86° camera at 1.5m.
func DefaultSizing() SizingParameters {
	return SizingParameters{
		ResolutionPx:  1280,
		FOVDeg:        86,
		DistanceMM:    1500,
		PixelsPerCell: 8,
		GridCells:     6,

		CubeEdge:      150,
		WallThickness: 3.2,
		SlotFraction:  0.85,
		SlotDepth:     2.4,
		DraftDeg:      45,
		BottomRim:     6,

		RoofExtra:      1.0,
		AtticDrop:      3.0,
		AtticMargin:    0.5,
		KeepoutMargin:  1.0,
		RampStartInset: 0.4,
		RampSlopeDeg:   45,

		Clearance:      0.2,
		MarginFraction: 0.88,
		CellHeight:     0.8,
		BezelOverhang:  0.8,
		BezelThickness: 0.8,
		TextHeight:     3.0,
		TextDepth:      1.2,
		Oversize:       OversizeFail,
	}
}

// DerivedDimensions holds every length derived from [SizingParameters].
// It is computed once per batch and never mutated afterwards.
type DerivedDimensions struct {
	CubeEdge      float64
	WallThickness float64
	InteriorSpan  float64 // Inside width of the hollow cube.
	BottomRim     float64 // Zero when the bottom is closed.

	SlotWidth      float64
	SlotDepth      float64
	MiterAmount    float64 // Horizontal inset of a cavity wall over the slot depth.
	TopOpening     float64 // Slot width at the floor, slot − 2×miter. Also the open-top through cut width.

	PlateWidth     float64
	PlateThickness float64

	RequiredMarkerWidth float64
	MarkerWidth         float64
	Clamped             bool
	Oversize            *MarkerOversizedError // Set when Clamped.
	QuietZone           float64
	CellPitch           float64
	GridCells           int
	CellHeight          float64

	BezelWidth     float64
	BezelOverhang  float64
	BezelThickness float64

	RoofExtra      float64
	AtticDrop      float64
	AtticMargin    float64
	KeepoutMargin  float64
	RampStartInset float64
	RampRun        float64 // Zero when the ramp is dropped.
	RampRise       float64
	RampSlopeDeg   float64

	TextHeight float64
	TextDepth  float64
}

// SlotFloor returns the height of the slot floor above the cube center.
func (d DerivedDimensions) SlotFloor() float64 { return d.CubeEdge/2 - d.SlotDepth }

// Derive validates p and computes the derived dimensions.
// When the marker does not fit the plate and p.Oversize is not
// [OversizeClamp] the returned error matches [ErrMarkerOversized].
func Derive(p SizingParameters) (DerivedDimensions, error) {
	if err := p.validate(); err != nil {
		return DerivedDimensions{}, err
	}
	// Optics.
	angularRes := float64(p.ResolutionPx) / p.FOVDeg                  // px/deg
	angularWidth := float64(p.PixelsPerCell*p.GridCells) / angularRes // deg
	if angularWidth >= 180 {
		return DerivedDimensions{}, &ParamError{Field: "pixels_per_cell", Value: p.PixelsPerCell, Reason: fmt.Sprintf("marker spans %.1f° of view", angularWidth)}
	}
	required := 2 * p.DistanceMM * math.Tan(radians(angularWidth)/2)

	slot := p.CubeEdge * p.SlotFraction
	plate := slot - 2*p.Clearance
	limit := plate * p.MarginFraction
	d := DerivedDimensions{
		CubeEdge:            p.CubeEdge,
		WallThickness:       p.WallThickness,
		InteriorSpan:        p.CubeEdge - 2*p.WallThickness,
		BottomRim:           p.BottomRim,
		SlotWidth:           slot,
		SlotDepth:           p.SlotDepth,
		MiterAmount:         p.SlotDepth * math.Tan(radians(p.DraftDeg)),
		PlateWidth:          plate,
		PlateThickness:      p.SlotDepth,
		RequiredMarkerWidth: required,
		MarkerWidth:         required,
		GridCells:           p.GridCells,
		CellHeight:          p.CellHeight,
		BezelOverhang:       p.BezelOverhang,
		BezelWidth:          slot + 2*p.BezelOverhang,
		BezelThickness:      math.Min(p.BezelThickness, p.SlotDepth),
		RoofExtra:           p.RoofExtra,
		AtticDrop:           p.AtticDrop,
		AtticMargin:         p.AtticMargin,
		KeepoutMargin:       p.KeepoutMargin,
		RampStartInset:      p.RampStartInset,
		RampSlopeDeg:        p.RampSlopeDeg,
		TextDepth:           p.TextDepth,
	}
	if required > limit {
		oversize := &MarkerOversizedError{Required: required, Limit: limit}
		if p.Oversize != OversizeClamp {
			return DerivedDimensions{}, oversize
		}
		d.MarkerWidth = limit
		d.Clamped = true
		d.Oversize = oversize
	}
	d.CellPitch = d.MarkerWidth / float64(p.GridCells)
	d.QuietZone = (plate - d.MarkerWidth) / 2
	d.TopOpening = slot - 2*d.MiterAmount

	run := (d.InteriorSpan-d.TopOpening)/2 - p.RampStartInset
	if run > minRampRun {
		d.RampRun = run
		d.RampRise = run * math.Tan(radians(p.RampSlopeDeg))
	}
	d.TextHeight = math.Max(math.Min(p.TextHeight, d.QuietZone-textBandMargin), minTextHeight)
	return d, nil
}

func (p SizingParameters) validate() error {
	type check struct {
		field string
		value float64
		ok    bool
		why   string
	}
	positive := func(field string, v float64) check {
		return check{field, v, v > 0 && !math.IsInf(v, 0), "must be positive"}
	}
	nonneg := func(field string, v float64) check {
		return check{field, v, v >= 0 && !math.IsInf(v, 0), "must not be negative"}
	}
	fraction := func(field string, v float64) check {
		return check{field, v, v > 0 && v < 1, "must be in (0,1)"}
	}
	checks := []check{
		{"resolution_px", float64(p.ResolutionPx), p.ResolutionPx > 0, "must be positive"},
		{"pixels_per_cell", float64(p.PixelsPerCell), p.PixelsPerCell > 0, "must be positive"},
		{"grid_cells", float64(p.GridCells), p.GridCells >= 3, "need a border and at least one data cell"},
		{"fov_deg", p.FOVDeg, p.FOVDeg > 0 && p.FOVDeg < 180, "must be in (0,180)"},
		positive("distance_mm", p.DistanceMM),
		positive("cube_edge", p.CubeEdge),
		positive("wall_thickness", p.WallThickness),
		fraction("slot_fraction", p.SlotFraction),
		positive("slot_depth", p.SlotDepth),
		{"draft_deg", p.DraftDeg, p.DraftDeg >= 0 && p.DraftDeg < 90, "must be in [0,90)"},
		nonneg("bottom_rim", p.BottomRim),
		nonneg("roof_extra", p.RoofExtra),
		nonneg("attic_drop", p.AtticDrop),
		nonneg("attic_margin", p.AtticMargin),
		positive("keepout_margin", p.KeepoutMargin),
		nonneg("ramp_start_inset", p.RampStartInset),
		{"ramp_slope_deg", p.RampSlopeDeg, p.RampSlopeDeg > 0 && p.RampSlopeDeg < 90, "must be in (0,90)"},
		nonneg("clearance", p.Clearance),
		fraction("margin_fraction", p.MarginFraction),
		positive("cell_height", p.CellHeight),
		nonneg("bezel_overhang", p.BezelOverhang),
		nonneg("bezel_thickness", p.BezelThickness),
		nonneg("text_height", p.TextHeight),
		nonneg("text_depth", p.TextDepth),
		// Feasibility.
		{"wall_thickness", p.WallThickness, p.WallThickness < p.CubeEdge/2, "must be less than half the cube edge"},
		{"slot_depth", p.SlotDepth, p.SlotDepth < p.WallThickness, "must be less than the wall thickness"},
		{"clearance", p.Clearance, 2*p.Clearance < p.CubeEdge*p.SlotFraction, "leaves no plate"},
		{"bottom_rim", p.BottomRim, p.BottomRim < p.CubeEdge/2, "must be less than half the cube edge"},
		{"text_depth", p.TextDepth, p.TextDepth < p.SlotDepth, "must be less than the slot depth"},
	}
	for _, c := range checks {
		if !c.ok || math.IsNaN(c.value) {
			return &ParamError{Field: c.field, Value: c.value, Reason: c.why}
		}
	}
	switch p.Oversize {
	case OversizeFail, OversizeClamp, "":
	default:
		return &ParamError{Field: "oversize", Value: p.Oversize, Reason: "must be fail or clamp"}
	}
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
