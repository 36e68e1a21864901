package recognize

import (
    "bytes"
    "context"
    "encoding/base64"
    "encoding/json"
    "fmt"
    "image"
    "io"
    "net/http"
    "strings"
    "time"
)

const TrOCRName = "trocr"

// TrOCRConfig configures the hosted TrOCR inference endpoint.
type TrOCRConfig struct {
    Endpoint   string // base URL; the model name is appended
    Model      string
    APIKey     string
    Timeout    time.Duration
    HTTPClient *http.Client // optional (tests)
}

// TrOCRClient sends line crops to an image-to-text inference endpoint
// speaking the Hugging Face inference API shape.
type TrOCRClient struct {
    http   *http.Client
    url    string
    apiKey string
}

func NewTrOCRClient(cfg TrOCRConfig) (*TrOCRClient, error) {
    if strings.TrimSpace(cfg.Endpoint) == "" {
        return nil, fmt.Errorf("trocr: endpoint not configured")
    }
    if cfg.Model == "" {
        cfg.Model = "microsoft/trocr-base-handwritten"
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = 60 * time.Second
    }
    hc := cfg.HTTPClient
    if hc == nil {
        hc = &http.Client{Timeout: cfg.Timeout}
    }
    return &TrOCRClient{
        http:   hc,
        url:    strings.TrimRight(cfg.Endpoint, "/") + "/" + strings.TrimLeft(cfg.Model, "/"),
        apiKey: cfg.APIKey,
    }, nil
}

func (c *TrOCRClient) Name() string { return TrOCRName }

type trocrReq struct {
    Inputs     string          `json:"inputs"`
    Parameters trocrParameters `json:"parameters"`
    Options    map[string]bool `json:"options,omitempty"`
}

type trocrParameters struct {
    MaxLength     int  `json:"max_length"`
    NumBeams      int  `json:"num_beams"`
    EarlyStopping bool `json:"early_stopping"`
}

type trocrResult struct {
    GeneratedText string `json:"generated_text"`
}

func (c *TrOCRClient) RecognizeLine(ctx context.Context, img image.Image, p GenParams) (string, error) {
    data, err := encodePNG(img)
    if err != nil {
        return "", err
    }
    payload := trocrReq{
        Inputs:     base64.StdEncoding.EncodeToString(data),
        Parameters: trocrParameters{MaxLength: p.MaxLength, NumBeams: p.NumBeams, EarlyStopping: true},
        Options:    map[string]bool{"wait_for_model": true},
    }
    body, _ := json.Marshal(payload)
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
    if err != nil {
        return "", err
    }
    httpReq.Header.Set("Content-Type", "application/json")
    if c.apiKey != "" {
        httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
    }

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
        return "", &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512), Provider: TrOCRName}
    }

    // list form is the norm; some deployments return a bare object
    var list []trocrResult
    if err := json.Unmarshal(raw, &list); err == nil {
        if len(list) == 0 {
            return "", nil
        }
        return strings.TrimSpace(list[0].GeneratedText), nil
    }
    var single trocrResult
    if err := json.Unmarshal(raw, &single); err != nil {
        return "", fmt.Errorf("decode trocr response: %w", err)
    }
    return strings.TrimSpace(single.GeneratedText), nil
}
