package imagerender

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDPI = 200
	MinDPI     = 72
	MaxDPI     = 600
)

// ErrUnsupportedFormat is returned for inputs that are neither PDF nor a known image.
var ErrUnsupportedFormat = errors.New("unsupported file type")

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tiff": true}

// ClampDPI maps out-of-range values to DefaultDPI.
func ClampDPI(dpi int) int {
	if dpi < MinDPI || dpi > MaxDPI {
		return DefaultDPI
	}
	return dpi
}

// PrepareInputImages turns an upload into page images inside outDir.
// PDFs become page_001.png, page_002.png, ...; a single image is copied to
// page_001<ext>. outDir is created if needed and owned by the caller.
func PrepareInputImages(uploadPath, outDir string, dpi int) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(uploadPath))
	switch {
	case ext == ".pdf":
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("create page dir: %w", err)
		}
		return RenderPDF(uploadPath, outDir, dpi)
	case imageExts[ext]:
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("create page dir: %w", err)
		}
		dst := filepath.Join(outDir, "page_001"+ext)
		if err := copyFile(uploadPath, dst); err != nil {
			return nil, fmt.Errorf("copy image: %w", err)
		}
		return []string{dst}, nil
	default:
		return nil, fmt.Errorf("%w '%s'. Upload PDF or image", ErrUnsupportedFormat, ext)
	}
}

// RenderPDF rasterizes every page of a PDF to PNG at the given DPI.
func RenderPDF(pdfPath, outDir string, dpi int) ([]string, error) {
	dpi = ClampDPI(dpi)

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if n, err := PageCount(pdfPath); err != nil {
		log.Debug().Err(err).Str("file", filepath.Base(pdfPath)).Msg("pdfcpu page count unavailable")
	} else if n != total {
		log.Warn().Int("fitz", total).Int("pdfcpu", n).Msg("page count mismatch; using renderer count")
	}

	paths := make([]string, 0, total)
	for i := 0; i < total; i++ {
		// go-fitz uses 0-based indexing
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		p := filepath.Join(outDir, fmt.Sprintf("page_%03d.png", i+1))
		f, err := os.Create(p)
		if err != nil {
			return nil, fmt.Errorf("create page image: %w", err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		b := img.Bounds()
		log.Debug().Int("page", i+1).Int("width", b.Dx()).Int("height", b.Dy()).Int("dpi", dpi).Msg("rendered page")
		paths = append(paths, p)
	}
	return paths, nil
}

// PageCount returns the number of pages in a PDF file.
func PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// EncodeFileBase64 reads a file and returns its standard base64 encoding.
func EncodeFileBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
