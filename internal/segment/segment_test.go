package segment

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// page returns a white w×h image with black rows in [from, to) for each span.
func page(w, h int, spans ...[2]int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, s := range spans {
		for y := s[0]; y < s[1]; y++ {
			for x := 0; x < w; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func TestLines_BlankPageReturnsWholeImage(t *testing.T) {
	img := page(200, 100)
	lines := Lines(img, DefaultOptions())
	require.Len(t, lines, 1)
	assert.Equal(t, img.Bounds(), lines[0].Bounds())
}

func TestLines_TwoBandsInOrder(t *testing.T) {
	img := page(200, 100, [2]int{10, 30}, [2]int{50, 70})

	bands := Bands(img, DefaultOptions())
	assert.Equal(t, []Band{{Top: 6, Bottom: 34}, {Top: 46, Bottom: 74}}, bands)

	lines := Lines(img, DefaultOptions())
	require.Len(t, lines, 2)
	assert.Equal(t, image.Rect(0, 6, 200, 34), lines[0].Bounds())
	assert.Equal(t, image.Rect(0, 46, 200, 74), lines[1].Bounds())
}

func TestBands_ShortRunIgnored(t *testing.T) {
	img := page(200, 100, [2]int{10, 20}, [2]int{50, 70})
	assert.Equal(t, []Band{{Top: 46, Bottom: 74}}, Bands(img, DefaultOptions()))
}

func TestBands_OnlyShortRunsFallsBackToWholeImage(t *testing.T) {
	img := page(200, 100, [2]int{10, 20})
	lines := Lines(img, DefaultOptions())
	require.Len(t, lines, 1)
	assert.Equal(t, img.Bounds(), lines[0].Bounds())
}

func TestBands_RunTouchingBottom(t *testing.T) {
	img := page(200, 100, [2]int{80, 100})
	assert.Equal(t, []Band{{Top: 76, Bottom: 100}}, Bands(img, DefaultOptions()))
}

func TestBands_PaddingClippedAtTop(t *testing.T) {
	img := page(200, 100, [2]int{0, 20})
	assert.Equal(t, []Band{{Top: 0, Bottom: 24}}, Bands(img, DefaultOptions()))
}

func TestBands_SparseInkBelowRatioIgnored(t *testing.T) {
	// one dark pixel per row is 0.5% of width
	img := page(200, 100)
	for y := 20; y < 60; y++ {
		img.SetGray(5, y, color.Gray{Y: 0})
	}
	assert.Empty(t, Bands(img, DefaultOptions()))
}

func TestLines_NonZeroOriginAndRGBA(t *testing.T) {
	src := page(50, 40, [2]int{10, 30})
	rgba := image.NewRGBA(image.Rect(100, 100, 150, 140))
	for y := 0; y < 40; y++ {
		for x := 0; x < 50; x++ {
			rgba.Set(100+x, 100+y, src.GrayAt(x, y))
		}
	}

	lines := Lines(rgba, DefaultOptions())
	require.Len(t, lines, 1)
	assert.Equal(t, image.Rect(100, 106, 150, 134), lines[0].Bounds())
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "p.png")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, page(20, 10)))
	require.NoError(t, f.Close())

	img, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
