package fcaux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/fiducube"
	"github.com/soypat/fiducube/fcmesh"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// RunDirLayout is the timestamp layout of run folder names.
const RunDirLayout = "2006-01-02_15-04-05"

// ManifestName is the file name of the run manifest inside a run folder.
const ManifestName = "run_info.yaml"

// MakeRunDir creates the folder prefix_<timestamp>. It fails if the folder
// already exists so runs never overwrite each other.
func MakeRunDir(prefix string, now time.Time) (string, error) {
	dir := prefix + "_" + now.Format(RunDirLayout)
	if parent := filepath.Dir(dir); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating run folder: %w", err)
	}
	return dir, nil
}

// ExportedPart describes one written part.
type ExportedPart struct {
	Name      string
	File      string
	Triangles int
	Report    *fcmesh.Report // Nil unless verification was enabled.
}

// ExportOptions controls [Export].
type ExportOptions struct {
	Mesh   fcmesh.Config
	Verify bool
	// Parallelism bounds concurrent triangulations. Zero uses GOMAXPROCS.
	Parallelism int
	Log         *zap.Logger
}

// Export triangulates every part of result and writes <name>.stl files to
// dir. A part that fails is skipped and its error joined into the returned
// error. The written parts are returned in result order.
func Export(ctx context.Context, dir string, result *fiducube.BuildResult, opts ExportOptions) ([]ExportedPart, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	par := opts.Parallelism
	if par <= 0 {
		par = runtime.GOMAXPROCS(0)
	}
	out := make([]ExportedPart, len(result.Parts))
	errs := make([]error, len(result.Parts))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(par)
	for i, part := range result.Parts {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			exp, err := exportPart(dir, part, opts)
			if err != nil {
				errs[i] = fmt.Errorf("exporting %s: %w", part.Name(), err)
				log.Error("export failed", zap.String("part", part.Name()), zap.Error(err))
				return nil
			}
			log.Info("wrote part", zap.String("file", exp.File), zap.Int("triangles", exp.Triangles))
			out[i] = exp
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	written := out[:0]
	for i := range out {
		if errs[i] == nil {
			written = append(written, out[i])
		}
	}
	return written, errors.Join(errs...)
}

func exportPart(dir string, part fiducube.Part, opts ExportOptions) (ExportedPart, error) {
	tris, err := fcmesh.Triangulate(part.Solid.Shape, opts.Mesh)
	if err != nil {
		return ExportedPart{}, err
	}
	exp := ExportedPart{
		Name:      part.Name(),
		File:      filepath.Join(dir, part.Name()+".stl"),
		Triangles: len(tris),
	}
	if opts.Verify {
		report := opts.Mesh.Checker().Check(tris)
		exp.Report = &report
		if err := report.Err(); err != nil {
			return ExportedPart{}, err
		}
	}
	if err := writeFile(exp.File, tris, fcmesh.WriteSTL); err != nil {
		return ExportedPart{}, err
	}
	return exp, nil
}

// writeFile writes tris to path with write. A partially written file is
// removed.
func writeFile(path string, tris []ms3.Triangle, write func(io.Writer, []ms3.Triangle) error) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	err = write(fp, tris)
	if cerr := fp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// Manifest records what a run was asked to do and what it produced.
type Manifest struct {
	RunID    uuid.UUID         `yaml:"run_id"`
	Created  time.Time         `yaml:"created"`
	Config   Config            `yaml:"config"`
	Derived  DerivedSummary    `yaml:"derived"`
	Warnings []string          `yaml:"warnings,omitempty"`
	Parts    []ManifestPart    `yaml:"parts"`
	Failures []ManifestFailure `yaml:"failures,omitempty"`
}

// DerivedSummary lists the derived dimensions a user checks before printing.
type DerivedSummary struct {
	SlotWidth      float64 `yaml:"slot_width"`
	SlotDepth      float64 `yaml:"slot_depth"`
	MiterAmount    float64 `yaml:"miter"`
	PlateWidth     float64 `yaml:"plate_width"`
	PlateThickness float64 `yaml:"plate_thickness"`
	RequiredMarker float64 `yaml:"required_marker_width"`
	MarkerWidth    float64 `yaml:"marker_width"`
	Clamped        bool    `yaml:"clamped"`
	QuietZone      float64 `yaml:"quiet_zone"`
	CellPitch      float64 `yaml:"cell_pitch"`
	BezelWidth     float64 `yaml:"bezel_width"`
	RampRun        float64 `yaml:"ramp_run"`
	RampRise       float64 `yaml:"ramp_rise"`
	TextHeight     float64 `yaml:"text_height"`
}

type ManifestPart struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	MarkerID  int    `yaml:"marker_id"`
	File      string `yaml:"file,omitempty"`
	Triangles int    `yaml:"triangles,omitempty"`
}

type ManifestFailure struct {
	Part     string `yaml:"part"`
	MarkerID int    `yaml:"marker_id"`
	Error    string `yaml:"error"`
}

// Summarize extracts the reported fields of d.
func Summarize(d fiducube.DerivedDimensions) DerivedSummary {
	return DerivedSummary{
		SlotWidth:      d.SlotWidth,
		SlotDepth:      d.SlotDepth,
		MiterAmount:    d.MiterAmount,
		PlateWidth:     d.PlateWidth,
		PlateThickness: d.PlateThickness,
		RequiredMarker: d.RequiredMarkerWidth,
		MarkerWidth:    d.MarkerWidth,
		Clamped:        d.Clamped,
		QuietZone:      d.QuietZone,
		CellPitch:      d.CellPitch,
		BezelWidth:     d.BezelWidth,
		RampRun:        d.RampRun,
		RampRise:       d.RampRise,
		TextHeight:     d.TextHeight,
	}
}

// NewManifest summarizes a build. exported may be nil when nothing was
// written yet.
func NewManifest(cfg Config, result *fiducube.BuildResult, exported []ExportedPart, now time.Time) *Manifest {
	d := result.Dims
	m := &Manifest{
		RunID:   uuid.New(),
		Created: now.UTC(),
		Config:  cfg,
		Derived: Summarize(d),
	}
	if d.Oversize != nil {
		m.Warnings = append(m.Warnings, "marker clamped: "+d.Oversize.Error())
	}
	if cfg.Cube.Slots != cfg.Plate.Plug {
		m.Warnings = append(m.Warnings, fmt.Sprintf("plate plug %s does not match cube slots %s", cfg.Plate.Plug, cfg.Cube.Slots))
	}
	files := make(map[string]ExportedPart, len(exported))
	for _, e := range exported {
		files[e.Name] = e
	}
	for _, p := range result.Parts {
		mp := ManifestPart{Name: p.Name(), Kind: string(p.Kind), MarkerID: p.MarkerID}
		if e, ok := files[p.Name()]; ok {
			mp.File = filepath.Base(e.File)
			mp.Triangles = e.Triangles
		}
		m.Parts = append(m.Parts, mp)
	}
	for _, f := range result.Failures {
		m.Failures = append(m.Failures, ManifestFailure{Part: f.Part, MarkerID: f.MarkerID, Error: f.Err.Error()})
	}
	return m
}

// WriteFile writes the manifest to dir/run_info.yaml.
func (m *Manifest) WriteFile(dir string) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
