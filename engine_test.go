package fiducube

import (
	"errors"
	"testing"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gsdf/glbuild"
)

func mustBox(t *testing.T, name string, side float32, center ms3.Vec) Solid {
	t.Helper()
	var b Builder
	s, err := b.Box(name, ms3.Vec{X: side, Y: side, Z: side}, center)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEngineOrder(t *testing.T) {
	var e Engine
	base := mustBox(t, "base", 10, ms3.Vec{})
	hole := mustBox(t, "hole", 4, ms3.Vec{})
	plug := mustBox(t, "plug", 2, ms3.Vec{})

	cutLast, err := e.Combine("cut_last", base, Union(plug), Subtract(hole))
	if err != nil {
		t.Fatal(err)
	}
	fillLast, err := e.Combine("fill_last", base, Subtract(hole), Union(plug))
	if err != nil {
		t.Fatal(err)
	}
	got := evalSolid(t, cutLast, ms3.Vec{})
	if got[0] <= 0 {
		t.Errorf("subtracting last must leave the center empty, got %g", got[0])
	}
	got = evalSolid(t, fillLast, ms3.Vec{})
	if got[0] >= 0 {
		t.Errorf("union last must fill the center, got %g", got[0])
	}
	if cutLast.Name != "cut_last" {
		t.Errorf("result named %q", cutLast.Name)
	}
}

// failingKernel fails the n-th call.
type failingKernel struct {
	n     int
	calls int
}

var errKernel = errors.New("kernel exploded")

func (k *failingKernel) Combine(a, b glbuild.Shader3D, op Op) (glbuild.Shader3D, error) {
	k.calls++
	if k.calls-1 == k.n {
		return nil, errKernel
	}
	return GSDFKernel{ProbeDivisions: -1}.Combine(a, b, op)
}

func TestEngineStepFailure(t *testing.T) {
	k := &failingKernel{n: 2}
	e := Engine{Kernel: k}
	base := mustBox(t, "base", 10, ms3.Vec{})
	s, err := e.Combine("part", base,
		Subtract(mustBox(t, "first", 2, ms3.Vec{X: 5})),
		Subtract(mustBox(t, "second", 2, ms3.Vec{X: -5})),
		Union(mustBox(t, "third", 2, ms3.Vec{Z: 5})),
		Union(mustBox(t, "fourth", 2, ms3.Vec{Z: -5})),
	)
	if !errors.Is(err, ErrBooleanFailure) || !errors.Is(err, errKernel) {
		t.Fatalf("want boolean failure wrapping kernel error, got %v", err)
	}
	if !s.IsZero() {
		t.Error("failed sequence returned geometry")
	}
	var berr *BooleanError
	if !errors.As(err, &berr) {
		t.Fatal(err)
	}
	if berr.Step != 2 || berr.Op != OpUnion || berr.Operand != "third" || berr.Base != "base after second" || berr.Part != "part" {
		t.Errorf("unexpected failure detail %+v", berr)
	}
	if k.calls != 3 {
		t.Errorf("sequence continued after failure: %d kernel calls", k.calls)
	}
}

func TestEngineRejectsEmptyResult(t *testing.T) {
	var e Engine
	small := mustBox(t, "small", 2, ms3.Vec{})
	big := mustBox(t, "big", 4, ms3.Vec{})
	_, err := e.Combine("gone", small, Subtract(big))
	if !errors.Is(err, ErrBooleanFailure) || !errors.Is(err, errEmptyResult) {
		t.Fatalf("want empty result failure, got %v", err)
	}
}

func TestEngineNilOperand(t *testing.T) {
	var e Engine
	base := mustBox(t, "base", 10, ms3.Vec{})
	_, err := e.Combine("part", base, Union(Solid{Name: "ghost"}))
	var berr *BooleanError
	if !errors.As(err, &berr) || berr.Step != 0 || berr.Operand != "ghost" {
		t.Fatalf("want step 0 failure naming operand, got %v", err)
	}
	_, err = e.Combine("part", Solid{Name: "nobase"})
	if !errors.As(err, &berr) || berr.Step != -1 {
		t.Fatalf("want base failure, got %v", err)
	}
}

func TestEngineVerifyHook(t *testing.T) {
	var seen int
	errReject := errors.New("rejected")
	e := Engine{Verify: func(s glbuild.Shader3D) error {
		seen++
		if seen == 2 {
			return errReject
		}
		return nil
	}}
	base := mustBox(t, "base", 10, ms3.Vec{})
	_, err := e.Combine("part", base,
		Subtract(mustBox(t, "a", 2, ms3.Vec{X: 5})),
		Subtract(mustBox(t, "b", 2, ms3.Vec{X: -5})),
		Subtract(mustBox(t, "c", 2, ms3.Vec{Y: 5})),
	)
	var berr *BooleanError
	if !errors.As(err, &berr) || berr.Step != 1 || !errors.Is(err, errReject) {
		t.Fatalf("want verify failure at step 1, got %v", err)
	}
	if seen != 2 {
		t.Errorf("verify called %d times", seen)
	}
}
