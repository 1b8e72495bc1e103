// Package label renders plate labels as 2D shapes for the fiducube plate
// assembler. [Vector] outlines TrueType glyphs exactly and [Raster] traces
// a bitmap rendering into rectangles. Both fit the text uniformly inside
// the requested box and center it there.
package label

import (
	"errors"
	"fmt"

	"github.com/soypat/fiducube"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/gsdf"
	"github.com/soypat/gsdf/glbuild"
)

var errNoSources = errors.New("no text sources")

// fit scales s uniformly so it fits inside box and centers it on box.
func fit(bld *gsdf.Builder, s glbuild.Shader2D, box ms2.Box) (glbuild.Shader2D, error) {
	bb := s.Bounds()
	sz := bb.Size()
	want := box.Size()
	if sz.X <= 0 || sz.Y <= 0 {
		return nil, errors.New("empty text shape")
	}
	if want.X <= 0 || want.Y <= 0 {
		return nil, fmt.Errorf("degenerate text box %v", box)
	}
	scale := min(want.X/sz.X, want.Y/sz.Y)
	c := bb.Center()
	dst := box.Center()
	s = bld.Scale2D(s, scale)
	s = bld.Translate2D(s, dst.X-c.X*scale, dst.Y-c.Y*scale)
	return s, bld.Err()
}

// Fallback tries each source in order and returns the first shape built.
type Fallback []fiducube.TextSource

// Text implements fiducube.TextSource.
func (f Fallback) Text(s string, box ms2.Box) (glbuild.Shader2D, error) {
	if len(f) == 0 {
		return nil, errNoSources
	}
	var errs []error
	for _, src := range f {
		shape, err := src.Text(s, box)
		if err == nil {
			return shape, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
