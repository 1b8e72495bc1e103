package fiducube

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf/glbuild"
	"github.com/soypat/gsdf/gleval"
	"go.uber.org/zap"
)

// Op is a boolean operation applied by the [Engine].
type Op uint8

const (
	OpUnion Op = iota + 1
	OpSubtract
)

func (op Op) String() string {
	switch op {
	case OpUnion:
		return "union"
	case OpSubtract:
		return "subtract"
	}
	return "op?"
}

// Step is one operation of an ordered boolean sequence.
type Step struct {
	Op    Op
	Solid Solid
}

// Union returns a step adding s to the accumulated solid.
func Union(s Solid) Step { return Step{Op: OpUnion, Solid: s} }

// Subtract returns a step removing s from the accumulated solid.
func Subtract(s Solid) Step { return Step{Op: OpSubtract, Solid: s} }

// Kernel performs a single boolean operation between two solids.
// Implementations must be safe for concurrent use.
type Kernel interface {
	Combine(a, b glbuild.Shader3D, op Op) (glbuild.Shader3D, error)
}

// GSDFKernel combines solids with the gsdf operations and probes every
// result for non-finite distances and emptiness.
type GSDFKernel struct {
	// ProbeDivisions is the number of probe samples along each axis of the
	// result's bounds. Zero uses 16. Negative disables probing.
	ProbeDivisions int
}

var (
	errEmptyResult  = errors.New("result is empty")
	errNonFinite    = errors.New("non-finite distance")
	errDegenerateBB = errors.New("degenerate bounds")
)

func (k GSDFKernel) Combine(a, b glbuild.Shader3D, op Op) (glbuild.Shader3D, error) {
	if a == nil || b == nil {
		return nil, errors.New("nil operand")
	}
	bld := newKernelBuilder()
	var s glbuild.Shader3D
	switch op {
	case OpUnion:
		s = bld.Union(a, b)
	case OpSubtract:
		s = bld.Difference(a, b)
	default:
		return nil, fmt.Errorf("unknown operation %d", op)
	}
	if err := bld.Err(); err != nil {
		return nil, err
	}
	div := k.ProbeDivisions
	if div < 0 {
		return s, nil
	} else if div == 0 {
		div = 16
	}
	if err := probe(s, div); err != nil {
		return nil, err
	}
	return s, nil
}

// probe samples s at the cell centers of a div×div×div grid over its bounds.
// The result is rejected if any distance is not finite or if every sample
// is farther from the surface than half a cell diagonal, which proves no
// material is left inside the bounds.
func probe(s glbuild.Shader3D, div int) error {
	bb := s.Bounds()
	size := bb.Size()
	if !(size.X > 0 && size.Y > 0 && size.Z > 0) || math32.IsInf(size.X+size.Y+size.Z, 0) {
		return errDegenerateBB
	}
	sdf, err := gleval.AssertSDF3(s)
	if err != nil {
		return err
	}
	cell := ms3.Scale(1/float32(div), size)
	inner := ms3.Box{Min: ms3.Add(bb.Min, ms3.Scale(0.5, cell)), Max: ms3.Sub(bb.Max, ms3.Scale(0.5, cell))}
	pos := ms3.AppendGrid(make([]ms3.Vec, 0, div*div*div), inner, div, div, div)
	dist := make([]float32, len(pos))
	var vp gleval.VecPool
	if err := sdf.Evaluate(pos, dist, &vp); err != nil {
		return err
	}
	halfDiag := ms3.Norm(cell) / 2
	minDist := float32(math.MaxFloat32)
	for _, d := range dist {
		if math32.IsNaN(d) || math32.IsInf(d, 0) {
			return errNonFinite
		}
		minDist = math32.Min(minDist, d)
	}
	if minDist > halfDiag {
		return errEmptyResult
	}
	return nil
}

// Engine applies ordered boolean sequences. The zero value uses [GSDFKernel].
// An Engine is safe for concurrent use when its Kernel and Verify are.
type Engine struct {
	Kernel Kernel
	// Verify, if set, is called with every intermediate result.
	Verify func(glbuild.Shader3D) error
	Log    *zap.Logger
}

func (e *Engine) kernel() Kernel {
	if e.Kernel != nil {
		return e.Kernel
	}
	return GSDFKernel{}
}

func (e *Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// Combine applies steps to base strictly in the given order and names the
// result. The first failure stops the sequence and is returned as a
// *BooleanError; nothing is repaired or skipped.
func (e *Engine) Combine(name string, base Solid, steps ...Step) (Solid, error) {
	if base.IsZero() {
		return Solid{}, &BooleanError{Part: name, Step: -1, Base: base.Name, Err: errors.New("no shape")}
	}
	k := e.kernel()
	log := e.logger()
	acc := base.Shape
	accName := base.Name
	for i, st := range steps {
		var next glbuild.Shader3D
		var err error
		if st.Solid.IsZero() {
			err = errors.New("operand has no shape")
		} else {
			next, err = k.Combine(acc, st.Solid.Shape, st.Op)
		}
		if err == nil && e.Verify != nil {
			err = e.Verify(next)
		}
		if err != nil {
			return Solid{}, &BooleanError{Part: name, Step: i, Op: st.Op, Base: accName, Operand: st.Solid.Name, Err: err}
		}
		log.Debug("boolean step", zap.String("part", name), zap.Int("step", i), zap.Stringer("op", st.Op), zap.String("operand", st.Solid.Name))
		acc = next
		accName = fmt.Sprintf("%s after %s", base.Name, st.Solid.Name)
	}
	return Solid{Name: name, Shape: acc}, nil
}
