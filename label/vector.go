package label

import (
	"fmt"
	"sync"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/glgl/math/ms1"
	"github.com/soypat/gsdf"
	"github.com/soypat/gsdf/forge/textsdf"
	"github.com/soypat/gsdf/glbuild"
)

// Vector renders text from TrueType glyph outlines.
type Vector struct {
	mu   sync.Mutex // Font caches glyphs.
	font textsdf.Font
}

// NewVector loads a TrueType font. A nil ttf loads the embedded ISO-3098
// font. tolerance is the relative curve tolerance of glyph outlines and is
// clamped to [0.001, 0.5].
func NewVector(ttf []byte, tolerance float32) (*Vector, error) {
	if ttf == nil {
		ttf = textsdf.ISO3098TTF()
	}
	v := &Vector{}
	err := v.font.Configure(textsdf.FontConfig{
		RelativeGlyphTolerance: ms1.Clamp(tolerance, 0.001, 0.5),
	})
	if err != nil {
		return nil, err
	}
	if err := v.font.LoadTTFBytes(ttf); err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	return v, nil
}

// Text implements fiducube.TextSource.
func (v *Vector) Text(s string, box ms2.Box) (glbuild.Shader2D, error) {
	v.mu.Lock()
	line, err := v.font.TextLine(s)
	v.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("text %q: %w", s, err)
	}
	bld := gsdf.Builder{NoDimensionPanic: true}
	return fit(&bld, line, box)
}
