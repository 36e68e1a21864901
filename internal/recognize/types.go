package recognize

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "image"
    "image/png"
)

const (
    DefaultMaxLength = 512
    DefaultNumBeams  = 4
)

// GenParams are decoding parameters passed to the handwriting model.
type GenParams struct {
    MaxLength int
    NumBeams  int
}

// NewGenParams clamps MaxLength to 1..1024 and NumBeams to 1..16.
// Zero means "use the default".
func NewGenParams(maxLength, numBeams int) GenParams {
    if maxLength == 0 {
        maxLength = DefaultMaxLength
    }
    if numBeams == 0 {
        numBeams = DefaultNumBeams
    }
    return GenParams{
        MaxLength: clamp(maxLength, 1, 1024),
        NumBeams:  clamp(numBeams, 1, 16),
    }
}

// LineRecognizer transcribes a single cropped text line.
type LineRecognizer interface {
    Name() string
    RecognizeLine(ctx context.Context, img image.Image, p GenParams) (string, error)
}

var (
    ErrNoCredentials   = errors.New("credentials not configured")
    ErrOfflineDisabled = errors.New("offline math backend not enabled; rebuild with -tags ocr")
    ErrEmptyResponse   = errors.New("empty response")
)

// HTTPError represents an HTTP status error from a recognition provider
type HTTPError struct {
    StatusCode int
    Body       string
    Provider   string
}

func (e *HTTPError) Error() string {
    return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

func encodePNG(img image.Image) ([]byte, error) {
    var buf bytes.Buffer
    if err := png.Encode(&buf, img); err != nil {
        return nil, fmt.Errorf("encode line image: %w", err)
    }
    return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
    if v < lo { return lo }
    if v > hi { return hi }
    return v
}

// truncate keeps error bodies readable in logs.
func truncate(s string, n int) string {
    if len(s) <= n { return s }
    return s[:n] + "..."
}
