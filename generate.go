package fiducube

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/gsdf/glbuild"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BitSource supplies the bit matrix of a marker. Row 0 is the top edge of
// the marker and true marks a raised (dark) cell. Implementations must be
// deterministic and safe for concurrent use.
type BitSource interface {
	MarkerBits(dictionary string, id int) ([][]bool, error)
}

// TextSource renders s as a 2D shape fitted inside box. Implementations
// must be safe for concurrent use.
type TextSource interface {
	Text(s string, box ms2.Box) (glbuild.Shader2D, error)
}

// PartKind classifies the parts of a [BuildResult].
type PartKind string

const (
	KindCube          PartKind = "cube"
	KindPlateTemplate PartKind = "plate_template"
	KindPlateBase     PartKind = "plate_base"
	KindPlateMarker   PartKind = "plate_marker"
	KindPlateCombined PartKind = "plate_combined"
)

// Part is a named solid of a batch. MarkerID is -1 for parts not tied to a
// marker.
type Part struct {
	Kind     PartKind
	MarkerID int
	Solid    Solid
}

// Name returns the part's solid name, which is also its file stem.
func (p Part) Name() string { return p.Solid.Name }

// BuildResult holds the parts of a batch in a deterministic order: cube,
// plate template, then base, marker and combined of each marker ID in the
// requested order.
type BuildResult struct {
	Dims     DerivedDimensions
	Parts    []Part
	Failures []PartFailure
}

// Part returns the part with the given name.
func (r *BuildResult) Part(name string) (Part, bool) {
	for _, p := range r.Parts {
		if p.Name() == name {
			return p, true
		}
	}
	return Part{}, false
}

// Err joins the failures of the batch. It returns nil if every part was built.
func (r *BuildResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i := range r.Failures {
		errs[i] = r.Failures[i]
	}
	return errors.Join(errs...)
}

// Generator builds the cube, the plate template and one plate per marker ID.
type Generator struct {
	Params     SizingParameters
	Cube       CubeOptions
	Plate      PlateOptions
	Dictionary string
	Bits       BitSource
	// Text renders plate labels. Labels are skipped when nil or when
	// Plate.Text is TextNone.
	Text        TextSource
	LabelPrefix string
	Assembler   Assembler
	// Parallelism bounds concurrent part builds. Zero uses GOMAXPROCS.
	Parallelism int
	Log         *zap.Logger
}

func (g *Generator) logger() *zap.Logger {
	if g.Log != nil {
		return g.Log
	}
	return zap.NewNop()
}

// MarkerSuffix returns the part name suffix of marker id.
func MarkerSuffix(id int) string { return "_id" + strconv.Itoa(id) }

// Generate derives the dimensions and builds every part. Invalid parameters
// and duplicate IDs abort the batch with an error. A part that fails to
// build is recorded in BuildResult.Failures and the rest of the batch
// continues.
func (g *Generator) Generate(ids []int) (*BuildResult, error) {
	log := g.logger()
	dims, err := Derive(g.Params)
	if err != nil {
		return nil, err
	}
	if dims.Oversize != nil {
		log.Warn("marker clamped to plate", zap.Float64("required_mm", dims.Oversize.Required), zap.Float64("limit_mm", dims.Oversize.Limit))
	}
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, &ParamError{Field: "marker_ids", Value: id, Reason: "duplicate marker ID"}
		}
		seen[id] = true
	}
	if len(ids) > 0 && g.Bits == nil {
		return nil, errors.New("marker IDs requested without a bit source")
	}
	if g.Plate.Plug != g.Cube.Slots {
		log.Warn("plate plug does not match cube slots", zap.Stringer("plug", g.Plate.Plug), zap.Stringer("slots", g.Cube.Slots))
	}

	// Each job writes only its own slots so the result order is fixed.
	type job struct {
		parts []Part
		fail  *PartFailure
	}
	jobs := make([]job, 2+len(ids))
	var eg errgroup.Group
	par := g.Parallelism
	if par <= 0 {
		par = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(par)

	eg.Go(func() error {
		cube, err := g.Assembler.BuildCube(dims, g.Cube)
		if err != nil {
			jobs[0].fail = &PartFailure{Part: CubePartName, MarkerID: -1, Err: err}
			return nil
		}
		jobs[0].parts = []Part{{Kind: KindCube, MarkerID: -1, Solid: cube}}
		return nil
	})
	eg.Go(func() error {
		opts := g.Plate
		opts.Text = TextNone
		base, err := g.Assembler.BuildPlateBase(PlateBaseName, dims, opts, Label{})
		if err != nil {
			jobs[1].fail = &PartFailure{Part: PlateBaseName, MarkerID: -1, Err: err}
			return nil
		}
		jobs[1].parts = []Part{{Kind: KindPlateTemplate, MarkerID: -1, Solid: base}}
		return nil
	})
	for i, id := range ids {
		eg.Go(func() error {
			parts, err := g.buildMarkerPlate(dims, id)
			if err != nil {
				jobs[2+i].fail = &PartFailure{Part: "plate" + MarkerSuffix(id), MarkerID: id, Err: err}
				return nil
			}
			jobs[2+i].parts = []Part{
				{Kind: KindPlateBase, MarkerID: id, Solid: parts.Base},
				{Kind: KindPlateMarker, MarkerID: id, Solid: parts.Marker},
				{Kind: KindPlateCombined, MarkerID: id, Solid: parts.Combined},
			}
			return nil
		})
	}
	eg.Wait() // Jobs record failures instead of returning them.

	result := &BuildResult{Dims: dims}
	for _, j := range jobs {
		result.Parts = append(result.Parts, j.parts...)
		if j.fail != nil {
			log.Error("part failed", zap.String("part", j.fail.Part), zap.Error(j.fail.Err))
			result.Failures = append(result.Failures, *j.fail)
		}
	}
	log.Info("batch built", zap.Int("parts", len(result.Parts)), zap.Int("failures", len(result.Failures)))
	return result, nil
}

func (g *Generator) buildMarkerPlate(dims DerivedDimensions, id int) (PlateParts, error) {
	bits, err := g.Bits.MarkerBits(g.Dictionary, id)
	if err != nil {
		return PlateParts{}, fmt.Errorf("marker bits: %w", err)
	}
	grid, err := NewCellGrid(bits, dims)
	if err != nil {
		return PlateParts{}, err
	}
	var label Label
	if g.Text != nil && g.Plate.Text != TextNone {
		s := g.LabelPrefix + strconv.Itoa(id)
		shape, err := g.Text.Text(s, TextBand(dims))
		if err != nil {
			return PlateParts{}, fmt.Errorf("label %q: %w", s, err)
		}
		label = Label{Text: s, Shape: shape}
	}
	parts, err := g.Assembler.BuildPlate(MarkerSuffix(id), dims, g.Plate, grid, label)
	if err != nil {
		return PlateParts{}, err
	}
	g.logger().Debug("plate built", zap.Int("id", id), zap.Int("raised_cells", len(grid.Raised())))
	return parts, nil
}
