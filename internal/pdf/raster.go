package pdf

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	fitz "github.com/gen2brain/go-fitz"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// rasterizePages renders every affected page at the given DPI, paints its
// redaction boxes and writes the result as a PNG in dir. It returns page
// index -> raster path. The raster carries no trace of the original text or
// vector content.
func rasterizePages(doc []byte, boxes map[int][]Box, dpi int, dir string) (map[int]string, error) {
	fdoc, err := fitz.NewFromMemory(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to open document for rasterization: %w", err)
	}
	defer fdoc.Close()

	scale := float64(dpi) / 72.0
	rasters := make(map[int]string, len(boxes))
	for page, pageBoxes := range boxes {
		img, err := fdoc.ImageDPI(page, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", page, err)
		}
		for _, b := range pageBoxes {
			paintBox(img, b, scale)
		}

		path := filepath.Join(dir, fmt.Sprintf("page_%d.png", page))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create raster file: %w", err)
		}
		if err := png.Encode(f, img); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to encode raster for page %d: %w", page, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close raster file: %w", err)
		}
		rasters[page] = path
	}
	return rasters, nil
}

// paintBox fills the box with opaque black and centers the optional label
// in white when it fits.
func paintBox(img *image.RGBA, b Box, scale float64) {
	px := image.Rect(
		int(b.Rect.X*scale),
		int(b.Rect.Y*scale),
		int((b.Rect.X+b.Rect.Width)*scale+0.5),
		int((b.Rect.Y+b.Rect.Height)*scale+0.5),
	).Intersect(img.Bounds())
	if px.Empty() {
		return
	}
	draw.Draw(img, px, image.NewUniform(color.Black), image.Point{}, draw.Src)
	if b.Label != "" {
		drawLabel(img, px, b.Label)
	}
}

func drawLabel(img *image.RGBA, box image.Rectangle, label string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	w := d.MeasureString(label).Ceil()
	h := face.Metrics().Height.Ceil()
	if w > box.Dx() || h > box.Dy() {
		return
	}
	d.Dot = fixed.P(
		box.Min.X+(box.Dx()-w)/2,
		box.Min.Y+(box.Dy()+face.Metrics().Ascent.Ceil())/2,
	)
	d.DrawString(label)
}
