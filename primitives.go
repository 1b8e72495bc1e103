package fiducube

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf"
	"github.com/soypat/gsdf/glbuild"
)

const (
	defaultOvercut = 0.5
	defaultWeld    = 0.01
)

// Builder creates the primitive solids of the cube and plate family.
// A Builder holds no geometry and may be shared between goroutines.
// Every call works on its own gsdf.Builder so dimension errors are reported
// per primitive instead of accumulating.
type Builder struct {
	// Overcut is how far cutting tools extend past the surface they open, so
	// no cut face lands on a surface of the solid being cut. Zero uses 0.5mm.
	Overcut float32
	// Weld is the overlap given to additive solids that would otherwise only
	// touch their host. Zero uses 0.01mm.
	Weld float32
}

func (b *Builder) overcut() float32 {
	if b.Overcut > 0 {
		return b.Overcut
	}
	return defaultOvercut
}

func (b *Builder) weld() float32 {
	if b.Weld > 0 {
		return b.Weld
	}
	return defaultWeld
}

func newKernelBuilder() *gsdf.Builder {
	return &gsdf.Builder{NoDimensionPanic: true}
}

// Box returns an axis aligned box of the given size centered at center.
func (b *Builder) Box(name string, size, center ms3.Vec) (Solid, error) {
	bld := newKernelBuilder()
	s := bld.NewBox(size.X, size.Y, size.Z, 0)
	if center != (ms3.Vec{}) {
		s = bld.Translate(s, center.X, center.Y, center.Z)
	}
	if err := bld.Err(); err != nil {
		return Solid{}, fmt.Errorf("box %q: %w", name, err)
	}
	return Solid{Name: name, Shape: s}, nil
}

// FaceBox returns a box whose cross section r lies on the plane of face and
// which spans [z0,z1] along the face normal, measured from the cube center.
func (b *Builder) FaceBox(name string, face Face, r Rect, z0, z1 float32) (Solid, error) {
	if !face.valid() {
		return Solid{}, fmt.Errorf("box %q: invalid face %d", name, face)
	}
	bb := face.localBox(r.W/2, r.H/2, z0, z1)
	return b.Box(name, bb.Size(), bb.Center())
}

// TaperedPrism returns a frustum between two parallel rectangles. base is
// the inner end and top the outer end along the normal of axis, height
// apart. The prism mid-height is placed at center.
//
// TaperedPrism fails with a *TaperError when either rectangle is degenerate
// or the miter, half the width difference of the ends, exceeds half the
// narrow end.
func (b *Builder) TaperedPrism(name string, base, top Rect, height float32, axis Face, center ms3.Vec) (Solid, error) {
	if err := validateTaper(name, base, top, height, axis); err != nil {
		return Solid{}, err
	}
	var s glbuild.Shader3D = &taperedPrism{base: base, top: top, h: height, face: axis}
	if center != (ms3.Vec{}) {
		bld := newKernelBuilder()
		s = bld.Translate(s, center.X, center.Y, center.Z)
		if err := bld.Err(); err != nil {
			return Solid{}, fmt.Errorf("tapered prism %q: %w", name, err)
		}
	}
	return Solid{Name: name, Shape: s}, nil
}

func validateTaper(name string, base, top Rect, height float32, axis Face) error {
	switch {
	case !axis.valid():
		return &TaperError{Solid: name, Reason: fmt.Sprintf("invalid axis %d", axis)}
	case !(height > 0) || math32.IsInf(height, 1):
		return &TaperError{Solid: name, Reason: fmt.Sprintf("bad height %g", height)}
	}
	narrow := Rect{W: math32.Min(base.W, top.W), H: math32.Min(base.H, top.H)}
	miterW := math32.Abs(top.W-base.W) / 2
	miterH := math32.Abs(top.H-base.H) / 2
	if miterW > narrow.W/2 || !narrow.valid() {
		return &TaperError{Solid: name, Miter: miterW, Limit: narrow.W / 2}
	}
	if miterH > narrow.H/2 {
		return &TaperError{Solid: name, Miter: miterH, Limit: narrow.H / 2}
	}
	if !base.valid() || !top.valid() {
		return &TaperError{Solid: name, Reason: "degenerate end rectangle"}
	}
	return nil
}

// MiterCutter returns the cutting tool of a mitered cavity in face. The
// cavity opens with width open at distance surface from the cube center and
// narrows by miter on every side over depth. The tool continues past the
// surface by the builder overcut keeping the same slope.
func (b *Builder) MiterCutter(name string, face Face, open Rect, miter, depth, surface float32) (Solid, error) {
	if !(depth > 0) {
		return Solid{}, &TaperError{Solid: name, Reason: fmt.Sprintf("bad depth %g", depth)}
	}
	inner := open.Inset(miter)
	if !inner.valid() {
		return Solid{}, &TaperError{Solid: name, Miter: miter, Limit: math32.Min(inner.W, inner.H) / 2}
	}
	if err := validateTaper(name, inner, open, depth, face); err != nil {
		return Solid{}, err
	}
	oc := b.overcut()
	outer := open.Inset(-miter * oc / depth)
	zmid := surface - depth + (depth+oc)/2
	return b.TaperedPrism(name, inner, outer, depth+oc, face, ms3.Scale(zmid, face.Normal()))
}

// RampSpec describes a sloped ring growing inward from a square footprint.
// The ring's hole measures Footprint − 2×StartInset at elevation Start and
// narrows to Inner at Target. Values are kept in float64 so the elevation
// check is not subject to float32 rounding of the inputs.
type RampSpec struct {
	Footprint  float64
	Inner      float64
	StartInset float64
	Start      float64
	Rise       float64
	Target     float64
}

// Run returns the horizontal distance covered by the ramp surface.
func (r RampSpec) Run() float64 { return (r.Footprint-r.Inner)/2 - r.StartInset }

func (r RampSpec) check() error {
	tol := 1e-6 * math.Max(1, math.Abs(r.Target))
	switch {
	case !(r.Rise > 0):
		return fmt.Errorf("ramp rise %g must be positive", r.Rise)
	case !(r.Run() > 0):
		return fmt.Errorf("ramp run %g must be positive", r.Run())
	case !(r.Inner > 0) || r.StartInset < 0:
		return errors.New("ramp hole does not fit footprint")
	case math.Abs(r.Start+r.Rise-r.Target) > tol:
		return fmt.Errorf("ramp from %g rising %g ends at %g, want %g", r.Start, r.Rise, r.Start+r.Rise, r.Target)
	}
	return nil
}

// PerimeterRamp returns the ring described by spec, centered on the Z axis.
// The outer sides are grown by the builder weld so the ring fuses with the
// walls it leans on.
func (b *Builder) PerimeterRamp(name string, spec RampSpec) (Solid, error) {
	if err := spec.check(); err != nil {
		return Solid{}, &ParamError{Field: name, Value: spec, Reason: err.Error()}
	}
	foot := float32(spec.Footprint)
	rise := float32(spec.Rise)
	start := float32(spec.Start)
	slope := float32(spec.Run() / spec.Rise) // Horizontal run per unit rise.
	oc := math32.Min(b.overcut(), rise/4)

	outerSide := foot + 2*b.weld()
	outer, err := b.Box(name+"_outer", ms3.Vec{X: outerSide, Y: outerSide, Z: rise}, ms3.Vec{Z: start + rise/2})
	if err != nil {
		return Solid{}, err
	}
	bottom := Square(foot - 2*float32(spec.StartInset) + 2*oc*slope)
	top := Square(float32(spec.Inner) - 2*oc*slope)
	hole, err := b.TaperedPrism(name+"_hole", bottom, top, rise+2*oc, FaceTop, ms3.Vec{Z: start + rise/2})
	if err != nil {
		return Solid{}, err
	}
	bld := newKernelBuilder()
	s := bld.Difference(outer.Shape, hole.Shape)
	if err := bld.Err(); err != nil {
		return Solid{}, fmt.Errorf("ramp %q: %w", name, err)
	}
	return Solid{Name: name, Shape: s}, nil
}

// CellExtrusion returns a prism over footprint rising height from baseZ.
func (b *Builder) CellExtrusion(name string, footprint ms2.Box, baseZ, height float32) (Solid, error) {
	sz := footprint.Size()
	c := footprint.Center()
	return b.Box(name, ms3.Vec{X: sz.X, Y: sz.Y, Z: height}, ms3.Vec{X: c.X, Y: c.Y, Z: baseZ + height/2})
}

// KeepoutVolume returns a box strictly containing region, grown by margin
// on every side.
func (b *Builder) KeepoutVolume(name string, region ms3.Box, margin float32) (Solid, error) {
	if !(margin > 0) {
		return Solid{}, &ParamError{Field: name, Value: margin, Reason: "keepout margin must be positive"}
	}
	size := ms3.AddScalar(2*margin, region.Size())
	return b.Box(name, size, region.Center())
}

// Extrude returns the 2D shape s extruded along Z between z0 and z1.
func (b *Builder) Extrude(name string, s glbuild.Shader2D, z0, z1 float32) (Solid, error) {
	if s == nil {
		return Solid{}, fmt.Errorf("extrude %q: nil shape", name)
	}
	bld := newKernelBuilder()
	e := bld.Extrude(s, z1-z0)
	e = bld.Translate(e, 0, 0, (z0+z1)/2)
	if err := bld.Err(); err != nil {
		return Solid{}, fmt.Errorf("extrude %q: %w", name, err)
	}
	return Solid{Name: name, Shape: e}, nil
}

// Translate returns s moved by v under a new name.
func (b *Builder) Translate(name string, s Solid, v ms3.Vec) (Solid, error) {
	bld := newKernelBuilder()
	moved := bld.Translate(s.Shape, v.X, v.Y, v.Z)
	if err := bld.Err(); err != nil {
		return Solid{}, fmt.Errorf("translate %q: %w", name, err)
	}
	return Solid{Name: name, Shape: moved}, nil
}

// taperedPrism is the intersection of two slabs of slanted planes and a slab
// normal to the face axis. In face-local coordinates the base rectangle lies
// at z=-h/2 and the top rectangle at z=h/2.
type taperedPrism struct {
	base, top Rect
	h         float32
	face      Face
}

// params returns the half height, base half widths, the half width growth
// per unit height and the plane normalization factors.
func (t *taperedPrism) params() (hh, bx, by, sx, sy, kx, ky float32) {
	hh = t.h / 2
	bx, by = t.base.W/2, t.base.H/2
	sx = (t.top.W - t.base.W) / (2 * t.h)
	sy = (t.top.H - t.base.H) / (2 * t.h)
	kx = 1 / math32.Sqrt(1+sx*sx)
	ky = 1 / math32.Sqrt(1+sy*sy)
	return hh, bx, by, sx, sy, kx, ky
}

func (t *taperedPrism) Bounds() ms3.Box {
	w := math32.Max(t.base.W, t.top.W) / 2
	h := math32.Max(t.base.H, t.top.H) / 2
	return t.face.localBox(w, h, -t.h/2, t.h/2)
}

func (t *taperedPrism) ForEachChild(userData any, fn func(userData any, s *glbuild.Shader3D) error) error {
	return nil
}

func (t *taperedPrism) AppendShaderName(b []byte) []byte {
	b = append(b, "taper"...)
	b = append(b, byte('0'+t.face))
	b = glbuild.AppendFloats(b, 0, 'n', 'p', t.base.W, t.base.H, t.top.W, t.top.H, t.h)
	return b
}

func (t *taperedPrism) AppendShaderBody(b []byte) []byte {
	hh, bx, by, sx, sy, kx, ky := t.params()
	b = append(b, "vec3 q="...)
	b = append(b, t.face.glslLocal()...)
	b = append(b, ";\n"...)
	b = glbuild.AppendFloatDecl(b, "hh", hh)
	b = glbuild.AppendFloatDecl(b, "bx", bx)
	b = glbuild.AppendFloatDecl(b, "by", by)
	b = glbuild.AppendFloatDecl(b, "sx", sx)
	b = glbuild.AppendFloatDecl(b, "sy", sy)
	b = glbuild.AppendFloatDecl(b, "kx", kx)
	b = glbuild.AppendFloatDecl(b, "ky", ky)
	b = append(b, `float z=q.z+hh;
float dz=abs(q.z)-hh;
float dx=(abs(q.x)-bx-sx*z)*kx;
float dy=(abs(q.y)-by-sy*z)*ky;
return max(dz,max(dx,dy));`...)
	return b
}

func (t *taperedPrism) AppendShaderObjects(objects []glbuild.ShaderObject) []glbuild.ShaderObject {
	return objects
}

func (t *taperedPrism) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	hh, bx, by, sx, sy, kx, ky := t.params()
	for i, p := range pos {
		q := t.face.toLocal(p)
		z := q.Z + hh
		dz := math32.Abs(q.Z) - hh
		dx := (math32.Abs(q.X) - bx - sx*z) * kx
		dy := (math32.Abs(q.Y) - by - sy*z) * ky
		dist[i] = math32.Max(dz, math32.Max(dx, dy))
	}
	return nil
}
