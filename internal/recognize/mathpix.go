package recognize

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"
)

const (
    MathpixName       = "mathpix"
    DefaultMathpixURL = "https://api.mathpix.com/v3/latex"
)

// MathpixConfig configures the page-level math recognizer.
type MathpixConfig struct {
    APIURL        string
    AppID         string
    AppKey        string
    Timeout       time.Duration
    IncludeLatex  bool
    IncludeMathML bool
    HTTPClient    *http.Client // optional (tests)
}

// MathpixClient posts a whole page image and returns its LaTeX.
type MathpixClient struct {
    http *http.Client
    cfg  MathpixConfig
}

func NewMathpixClient(cfg MathpixConfig) *MathpixClient {
    if cfg.APIURL == "" {
        cfg.APIURL = DefaultMathpixURL
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = 30 * time.Second
    }
    hc := cfg.HTTPClient
    if hc == nil {
        hc = &http.Client{Timeout: cfg.Timeout}
    }
    return &MathpixClient{http: hc, cfg: cfg}
}

// MathTimeout clamps a configured timeout in seconds to 5..120.
func MathTimeout(sec int) time.Duration {
    return time.Duration(clamp(sec, 5, 120)) * time.Second
}

// Configured reports whether both credentials are present.
func (c *MathpixClient) Configured() bool {
    return c != nil && c.cfg.AppID != "" && c.cfg.AppKey != ""
}

type mathpixReq struct {
    Src         string             `json:"src"`
    Formats     []string           `json:"formats"`
    DataOptions mathpixDataOptions `json:"data_options"`
}

type mathpixDataOptions struct {
    IncludeLatex  bool `json:"include_latex"`
    IncludeMathML bool `json:"include_mathml"`
}

type mathpixResp struct {
    LatexNormal string `json:"latex_normal"`
    Error       string `json:"error"`
}

// Recognize sends a base64 PNG and returns the latex_normal field.
// An empty string with nil error means the service found nothing.
func (c *MathpixClient) Recognize(ctx context.Context, imageB64 string) (string, error) {
    if !c.Configured() {
        return "", fmt.Errorf("mathpix: %w", ErrNoCredentials)
    }
    payload := mathpixReq{
        Src:     "data:image/png;base64," + imageB64,
        Formats: []string{"latex_normal"},
        DataOptions: mathpixDataOptions{
            IncludeLatex:  c.cfg.IncludeLatex,
            IncludeMathML: c.cfg.IncludeMathML,
        },
    }
    body, _ := json.Marshal(payload)
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
    if err != nil {
        return "", err
    }
    httpReq.Header.Set("app_id", c.cfg.AppID)
    httpReq.Header.Set("app_key", c.cfg.AppKey)
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return "", err
    }
    defer resp.Body.Close()
    raw, err := io.ReadAll(resp.Body)
    if err != nil {
        return "", err
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return "", &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512), Provider: MathpixName}
    }
    var r mathpixResp
    if err := json.Unmarshal(raw, &r); err != nil {
        return "", fmt.Errorf("decode mathpix response: %w", err)
    }
    return strings.TrimSpace(r.LatexNormal), nil
}
