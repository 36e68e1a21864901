//go:build !ocr

package recognize

import "context"

// TesseractMath is unavailable without the "ocr" build tag.
type TesseractMath struct{}

// NewTesseractMath returns ErrOfflineDisabled when built without -tags ocr.
func NewTesseractMath(string) (*TesseractMath, error) {
    return nil, ErrOfflineDisabled
}

// OfflineAvailable reports whether the offline backend is compiled in.
func OfflineAvailable() bool { return false }

func (t *TesseractMath) Recognize(context.Context, string) (string, error) {
    return "", ErrOfflineDisabled
}
