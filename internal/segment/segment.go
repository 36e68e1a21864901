// Package segment splits a page image into horizontal text-line crops using a
// row-wise ink projection. No model is involved; the input is assumed to be a
// roughly deskewed scan with dark ink on a light background.
package segment

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Options tunes the projection profile.
type Options struct {
	// MinLineHeight is the shortest run of text rows kept as a line.
	MinLineHeight int
	// Padding is added above and below each run, clipped to the image.
	Padding int
	// ThresholdOffset is subtracted from the mean intensity.
	ThresholdOffset float64
	// ThresholdFloor is the lowest threshold allowed.
	ThresholdFloor float64
	// InkRatio is the share of a row that must be ink for it to count as text.
	InkRatio float64
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		MinLineHeight:   15,
		Padding:         4,
		ThresholdOffset: 30,
		ThresholdFloor:  80,
		InkRatio:        0.01,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinLineHeight <= 0 {
		o.MinLineHeight = d.MinLineHeight
	}
	if o.Padding < 0 {
		o.Padding = 0
	}
	if o.ThresholdFloor <= 0 {
		o.ThresholdFloor = d.ThresholdFloor
	}
	if o.InkRatio <= 0 {
		o.InkRatio = d.InkRatio
	}
	return o
}

// Band is a vertical span [Top, Bottom) in image-relative rows, padding included.
type Band struct {
	Top    int
	Bottom int
}

func (b Band) Height() int { return b.Bottom - b.Top }

// Grayscale converts img to 8-bit luma with origin at (0,0).
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Bands returns the vertical bounds of each detected line, top to bottom.
func Bands(gray *image.Gray, opts Options) []Band {
	opts = opts.withDefaults()
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	var sum float64
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for _, v := range row {
			sum += float64(v)
		}
	}
	mean := sum / float64(w*h)
	threshold := mean - opts.ThresholdOffset
	if threshold < opts.ThresholdFloor {
		threshold = opts.ThresholdFloor
	}
	minInk := float64(w) * opts.InkRatio

	textRow := make([]bool, h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		ink := 0
		for _, v := range row {
			if float64(v) < threshold {
				ink++
			}
		}
		textRow[y] = float64(ink) > minInk
	}

	var bands []Band
	inLine := false
	start := 0
	for y, isText := range textRow {
		switch {
		case isText && !inLine:
			inLine = true
			start = y
		case !isText && inLine:
			inLine = false
			if y-start >= opts.MinLineHeight {
				bands = append(bands, Band{Top: max(0, start-opts.Padding), Bottom: min(h, y+opts.Padding)})
			}
		}
	}
	// run touching the last row
	if inLine && h-start >= opts.MinLineHeight {
		bands = append(bands, Band{Top: max(0, start-opts.Padding), Bottom: h})
	}
	return bands
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Lines returns full-width crops for each detected line in top-to-bottom
// order. When nothing qualifies the whole image is returned as the only line.
func Lines(img image.Image, opts Options) []image.Image {
	bands := Bands(Grayscale(img), opts)
	if len(bands) == 0 {
		return []image.Image{img}
	}
	b := img.Bounds()
	out := make([]image.Image, 0, len(bands))
	for _, band := range bands {
		r := image.Rect(b.Min.X, b.Min.Y+band.Top, b.Max.X, b.Min.Y+band.Bottom)
		out = append(out, crop(img, r))
	}
	return out
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Load decodes a PNG, JPEG, BMP or TIFF page image.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
