package markers

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// darkThreshold is the luminance below which a sampled cell counts as black.
const darkThreshold = 128

// FromImage samples an image of a marker, border included, on an n×n grid.
// Each cell is read at its center pixel. Dark cells are raised.
func FromImage(img image.Image, n int) ([][]bool, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid cell count %d", n)
	}
	b := img.Bounds()
	if b.Dx() < n || b.Dy() < n {
		return nil, fmt.Errorf("image %dx%d smaller than %d cells", b.Dx(), b.Dy(), n)
	}
	bits := make([][]bool, n)
	for r := range bits {
		bits[r] = make([]bool, n)
		y := b.Min.Y + (2*r+1)*b.Dy()/(2*n)
		for c := range bits[r] {
			x := b.Min.X + (2*c+1)*b.Dx()/(2*n)
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			bits[r][c] = g.Y < darkThreshold
		}
	}
	return bits, nil
}

// ImageDir reads marker images from a directory. The file of a marker is
// found by formatting Pattern with the marker ID, for example "%d.png".
// PNG, BMP and TIFF files are accepted. The dictionary name is ignored.
type ImageDir struct {
	Dir     string
	Pattern string
	// Cells is the grid side including the border.
	Cells int
}

// MarkerBits implements fiducube.BitSource.
func (d ImageDir) MarkerBits(_ string, id int) ([][]bool, error) {
	if d.Pattern == "" {
		return nil, errors.New("image directory without file pattern")
	}
	filename := filepath.Join(d.Dir, fmt.Sprintf(d.Pattern, id))
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	img, _, err := image.Decode(fp)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return FromImage(img, d.Cells)
}
