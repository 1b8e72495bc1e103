// Package fiducube generates printable fiducial cubes: a hollow cube with
// five recessed slots and the removable two-color marker plates that seat in
// them.
//
// All geometry is expressed as [gsdf] signed distance fields. Dimensions are
// derived once from [SizingParameters] by [Derive] and shared read-only by
// the cube and plate assemblers, which combine primitive solids through an
// ordered boolean [Engine].
//
// [gsdf]: https://github.com/soypat/gsdf
package fiducube

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf/glbuild"
)

// Solid is a named closed volume. Its surface is the zero isosurface of Shape.
type Solid struct {
	Name  string
	Shape glbuild.Shader3D
}

// Bounds returns the bounding box of the solid. Bounds panics if s has no shape.
func (s Solid) Bounds() ms3.Box { return s.Shape.Bounds() }

// IsZero reports whether s holds no geometry.
func (s Solid) IsZero() bool { return s.Shape == nil }

// Rect is an axis aligned rectangle centered on a face axis.
// W is measured along the face's local X direction and H along local Y.
type Rect struct {
	W, H float32
}

// Square returns a Rect with both sides equal to side.
func Square(side float32) Rect { return Rect{W: side, H: side} }

// Inset returns r shrunk by amount on every side.
func (r Rect) Inset(amount float32) Rect {
	return Rect{W: r.W - 2*amount, H: r.H - 2*amount}
}

func (r Rect) valid() bool {
	return r.W > 0 && r.H > 0 && !math32.IsInf(r.W, 1) && !math32.IsInf(r.H, 1)
}

// Face identifies one of the six cube faces by its outward normal.
type Face uint8

const (
	FaceTop Face = iota // +Z
	FacePosX
	FaceNegX
	FacePosY
	FaceNegY
	FaceBottom // -Z
)

// SlotFaces lists the faces that carry a marker slot in assembly order. The
// bottom face is reserved for the opening used to print without supports.
var SlotFaces = [5]Face{FaceTop, FacePosX, FaceNegX, FacePosY, FaceNegY}

func (f Face) String() string {
	switch f {
	case FaceTop:
		return "top"
	case FacePosX:
		return "+x"
	case FaceNegX:
		return "-x"
	case FacePosY:
		return "+y"
	case FaceNegY:
		return "-y"
	case FaceBottom:
		return "bottom"
	}
	return "face?"
}

func (f Face) valid() bool { return f <= FaceBottom }

// toLocal maps a world point into face-local coordinates in which +Z is the
// face's outward normal. The mapping only permutes and negates axes so it
// preserves distances.
func (f Face) toLocal(p ms3.Vec) ms3.Vec {
	switch f {
	case FacePosX:
		return ms3.Vec{X: p.Y, Y: p.Z, Z: p.X}
	case FaceNegX:
		return ms3.Vec{X: p.Y, Y: p.Z, Z: -p.X}
	case FacePosY:
		return ms3.Vec{X: p.X, Y: p.Z, Z: p.Y}
	case FaceNegY:
		return ms3.Vec{X: p.X, Y: p.Z, Z: -p.Y}
	case FaceBottom:
		return ms3.Vec{X: p.X, Y: -p.Y, Z: -p.Z}
	}
	return p
}

// toWorld is the inverse of toLocal.
func (f Face) toWorld(q ms3.Vec) ms3.Vec {
	switch f {
	case FacePosX:
		return ms3.Vec{X: q.Z, Y: q.X, Z: q.Y}
	case FaceNegX:
		return ms3.Vec{X: -q.Z, Y: q.X, Z: q.Y}
	case FacePosY:
		return ms3.Vec{X: q.X, Y: q.Z, Z: q.Y}
	case FaceNegY:
		return ms3.Vec{X: q.X, Y: -q.Z, Z: q.Y}
	case FaceBottom:
		return ms3.Vec{X: q.X, Y: -q.Y, Z: -q.Z}
	}
	return q
}

// glslLocal returns the GLSL expression equivalent to toLocal applied to p.
func (f Face) glslLocal() string {
	switch f {
	case FacePosX:
		return "p.yzx"
	case FaceNegX:
		return "vec3(p.y,p.z,-p.x)"
	case FacePosY:
		return "p.xzy"
	case FaceNegY:
		return "vec3(p.x,p.z,-p.y)"
	case FaceBottom:
		return "vec3(p.x,-p.y,-p.z)"
	}
	return "p"
}

// Normal returns the outward unit normal of the face.
func (f Face) Normal() ms3.Vec {
	return f.toWorld(ms3.Vec{Z: 1})
}

// localBox returns the world bounding box of the face-local box spanning
// [-halfW,halfW]×[-halfH,halfH]×[z0,z1].
func (f Face) localBox(halfW, halfH, z0, z1 float32) ms3.Box {
	a := f.toWorld(ms3.Vec{X: -halfW, Y: -halfH, Z: z0})
	b := f.toWorld(ms3.Vec{X: halfW, Y: halfH, Z: z1})
	return ms3.Box{Min: ms3.MinElem(a, b), Max: ms3.MaxElem(a, b)}
}

// boxOverlap2 reports whether a and b share interior volume, ignoring contact
// closer than tol.
func boxOverlap2(a, b ms2.Box, tol float32) bool {
	return a.Min.X < b.Max.X-tol && b.Min.X < a.Max.X-tol &&
		a.Min.Y < b.Max.Y-tol && b.Min.Y < a.Max.Y-tol
}

// boxContains2 reports whether outer contains inner within tol.
func boxContains2(outer, inner ms2.Box, tol float32) bool {
	return inner.Min.X >= outer.Min.X-tol && inner.Min.Y >= outer.Min.Y-tol &&
		inner.Max.X <= outer.Max.X+tol && inner.Max.Y <= outer.Max.Y+tol
}
