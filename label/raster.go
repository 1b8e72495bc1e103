package label

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/gsdf"
	"github.com/soypat/gsdf/glbuild"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// coverageThreshold is the alpha at which a pixel is part of a glyph.
const coverageThreshold = 128

// defaultWeld is the overlap, in millimeters after fitting, given to
// traced rectangles so pixels touching at a corner fuse.
const defaultWeld = 0.01

// Raster renders text to a bitmap and traces lit pixels into rectangles.
// It has no outline requirements on the font and serves as a fallback.
type Raster struct {
	// Weld grows every traced rectangle by this many millimeters of the
	// fitted label. Zero uses 0.01mm, the plate cell weld.
	Weld float32

	mu   sync.Mutex // font.Face is not safe for concurrent use.
	face font.Face
}

// NewRaster returns a Raster drawing with face. A nil face uses the 7x13
// basic font.
func NewRaster(face font.Face) *Raster {
	if face == nil {
		face = basicfont.Face7x13
	}
	return &Raster{face: face}
}

// NewRasterTTF returns a Raster drawing a TrueType font at sizePx pixels
// per em. Larger sizes trace finer glyphs into more rectangles.
func NewRasterTTF(ttf []byte, sizePx float64) (*Raster, error) {
	if sizePx <= 0 {
		return nil, fmt.Errorf("invalid raster size %g", sizePx)
	}
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	face := truetype.NewFace(f, &truetype.Options{Size: sizePx, DPI: 72, Hinting: font.HintingFull})
	return NewRaster(face), nil
}

// Text implements fiducube.TextSource.
func (r *Raster) Text(s string, box ms2.Box) (glbuild.Shader2D, error) {
	r.mu.Lock()
	img := r.draw(s)
	r.mu.Unlock()
	weld := r.Weld
	if weld <= 0 {
		weld = defaultWeld
	}
	shape, err := traceShape(img, box, weld)
	if err != nil {
		return nil, fmt.Errorf("text %q: %w", s, err)
	}
	return shape, nil
}

// traceShape fits the lit pixels of img into box. Rectangles grow by weld,
// measured after fitting.
func traceShape(img *image.Alpha, box ms2.Box, weld float32) (glbuild.Shader2D, error) {
	rects := traceRects(img)
	if len(rects) == 0 {
		return nil, errors.New("rendered no pixels")
	}
	ext := rects[0]
	for _, rc := range rects[1:] {
		ext = ext.Union(rc)
	}
	want := box.Size()
	scale := min(want.X/float32(ext.Dx()), want.Y/float32(ext.Dy()))
	if !(scale > 0) {
		return nil, fmt.Errorf("degenerate text box %v", box)
	}
	grow := weld / scale
	bld := gsdf.Builder{NoDimensionPanic: true}
	shapes := make([]glbuild.Shader2D, len(rects))
	bottom := img.Bounds().Max.Y
	for i, rc := range rects {
		sz := rc.Size()
		// Image rows grow downward.
		cx := float32(rc.Min.X) + float32(sz.X)/2
		cy := float32(bottom-rc.Max.Y) + float32(sz.Y)/2
		shapes[i] = bld.Translate2D(bld.NewRectangle(float32(sz.X)+2*grow, float32(sz.Y)+2*grow), cx, cy)
	}
	shape := shapes[0]
	if len(shapes) > 1 {
		shape = bld.Union2D(shapes...)
	}
	if err := bld.Err(); err != nil {
		return nil, err
	}
	return fit(&bld, shape, box)
}

func (r *Raster) draw(s string) *image.Alpha {
	m := r.face.Metrics()
	adv := font.MeasureString(r.face, s)
	w := adv.Ceil() + 2
	h := (m.Ascent + m.Descent).Ceil() + 2
	img := image.NewAlpha(image.Rect(0, 0, max(w, 1), max(h, 1)))
	d := font.Drawer{
		Dst:  img,
		Src:  image.Opaque,
		Face: r.face,
		Dot:  fixed.P(1, 1+m.Ascent.Ceil()),
	}
	d.DrawString(s)
	return img
}

// traceRects covers the lit pixels of img with rectangles. Runs of lit
// pixels in a row become rectangles that grow downward while the next row
// has an identical run.
func traceRects(img *image.Alpha) []image.Rectangle {
	b := img.Bounds()
	var done, open []image.Rectangle
	for y := b.Min.Y; y < b.Max.Y; y++ {
		runs := rowRuns(img, y)
		var next []image.Rectangle
		for _, run := range runs {
			grown := false
			for i, rc := range open {
				if rc.Min.X == run.Min.X && rc.Max.X == run.Max.X {
					rc.Max.Y = y + 1
					next = append(next, rc)
					open = append(open[:i], open[i+1:]...)
					grown = true
					break
				}
			}
			if !grown {
				next = append(next, run)
			}
		}
		done = append(done, open...)
		open = next
	}
	return append(done, open...)
}

func rowRuns(img *image.Alpha, y int) []image.Rectangle {
	b := img.Bounds()
	var runs []image.Rectangle
	start := -1
	for x := b.Min.X; x <= b.Max.X; x++ {
		lit := x < b.Max.X && img.AlphaAt(x, y).A >= coverageThreshold
		switch {
		case lit && start < 0:
			start = x
		case !lit && start >= 0:
			runs = append(runs, image.Rect(start, y, x, y+1))
			start = -1
		}
	}
	return runs
}
