//go:build ocr

package recognize

import (
    "context"
    "fmt"

    "github.com/otiai10/gosseract/v2"
)

// TesseractMath runs Tesseract over the whole page. It requires the
// tesseract libraries at build and run time.
type TesseractMath struct {
    lang string
}

// NewTesseractMath returns the offline recognizer. lang uses Tesseract's
// "+" separated form, e.g. "eng+equ".
func NewTesseractMath(lang string) (*TesseractMath, error) {
    if lang == "" {
        lang = "eng"
    }
    return &TesseractMath{lang: lang}, nil
}

// OfflineAvailable reports whether the offline backend is compiled in.
func OfflineAvailable() bool { return true }

// Recognize returns one fragment per detected paragraph joined with blank lines.
func (t *TesseractMath) Recognize(ctx context.Context, imagePath string) (string, error) {
    if err := ctx.Err(); err != nil {
        return "", err
    }
    // gosseract clients are not safe for concurrent use
    client := gosseract.NewClient()
    defer client.Close()

    if err := client.SetLanguage(t.lang); err != nil {
        return "", fmt.Errorf("tesseract language %q: %w", t.lang, err)
    }
    if err := client.SetImage(imagePath); err != nil {
        return "", fmt.Errorf("failed to set image: %w", err)
    }
    boxes, err := client.GetBoundingBoxes(gosseract.RIL_PARA)
    if err != nil {
        return "", fmt.Errorf("OCR failed: %w", err)
    }
    frags := make([]Fragment, 0, len(boxes))
    for _, b := range boxes {
        frags = append(frags, Fragment{Text: b.Word})
    }
    return JoinFragments(frags), nil
}
