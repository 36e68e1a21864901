package recognize

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/texform/internal/config"
    "github.com/local/texform/internal/imagerender"
    "github.com/local/texform/internal/metrics"
    "github.com/local/texform/internal/segment"
)

// Adapter turns page images into text: line-by-line handwriting recognition
// followed by best-effort math enrichment.
type Adapter struct {
    Model   *ModelHandle
    Segment segment.Options
    Params  GenParams

    // Mathpix is skipped when nil or missing credentials.
    Mathpix *MathpixClient
    // MathpixBreaker skips MathPix for a while after transient failures.
    // Nil (the default) means every page calls MathPix.
    MathpixBreaker *Breaker
    // Offline is consulted only when UseFreeBackend is set.
    Offline        OfflineMath
    UseFreeBackend bool
}

// NewAdapter wires an Adapter from settings.
func NewAdapter(res *config.Resolver) (*Adapter, error) {
    cfg, err := res.Config()
    if err != nil {
        return nil, err
    }
    appID, appKey := res.MathpixCredentials()
    a := &Adapter{
        Model: NewModelHandle(BackendFromConfig(res, cfg.OCREngine)),
        Segment: segment.Options{
            MinLineHeight:   cfg.Segmentation.MinLineHeight,
            Padding:         cfg.Segmentation.Padding,
            ThresholdOffset: cfg.Segmentation.ThresholdOffset,
            ThresholdFloor:  cfg.Segmentation.ThresholdFloor,
            InkRatio:        cfg.Segmentation.InkRatio,
        },
        Params: NewGenParams(cfg.OCREngine.MaxLength, cfg.OCREngine.NumBeams),
        Mathpix: NewMathpixClient(MathpixConfig{
            APIURL:        cfg.MathRecognition.APIURL,
            AppID:         appID,
            AppKey:        appKey,
            Timeout:       MathTimeout(cfg.MathRecognition.TimeoutSec),
            IncludeLatex:  cfg.MathRecognition.IncludeLatex,
            IncludeMathML: cfg.MathRecognition.IncludeMathML,
        }),
        UseFreeBackend: cfg.MathRecognition.UseFreeBackend,
    }
    if cfg.MathRecognition.CircuitBreaker {
        a.MathpixBreaker = NewBreaker(MathpixName, 0, 0)
    }
    if a.UseFreeBackend {
        tm, err := NewTesseractMath(cfg.MathRecognition.FreeBackendLang)
        if err != nil {
            log.Info().Err(err).Msg("offline math backend unavailable")
        } else {
            a.Offline = tm
        }
    }
    return a, nil
}

// RecognizePage segments the page into lines and transcribes them in order.
// Empty line results are dropped; the rest are joined with newlines.
// Any line failure fails the page.
func (a *Adapter) RecognizePage(ctx context.Context, imagePath string) (string, error) {
    rec, err := a.Model.Get(ctx)
    if err != nil {
        return "", err
    }
    img, err := segment.Load(imagePath)
    if err != nil {
        return "", fmt.Errorf("load page image: %w", err)
    }

    start := time.Now()
    lines := segment.Lines(img, a.Segment)
    metrics.ObserveStage("segment", time.Since(start))

    params := a.Params
    if params.MaxLength == 0 || params.NumBeams == 0 {
        params = NewGenParams(params.MaxLength, params.NumBeams)
    }

    start = time.Now()
    texts := make([]string, 0, len(lines))
    for i, line := range lines {
        text, err := rec.RecognizeLine(ctx, line, params)
        if err != nil {
            return "", fmt.Errorf("recognize line %d/%d: %w", i+1, len(lines), err)
        }
        if t := strings.TrimSpace(text); t != "" {
            texts = append(texts, t)
        }
    }
    metrics.ObserveStage("recognize", time.Since(start))
    metrics.AddLines(len(lines))
    log.Debug().Str("page", imagePath).Int("lines", len(lines)).Int("kept", len(texts)).Str("provider", rec.Name()).Msg("page recognized")

    return strings.Join(texts, "\n"), nil
}

// Enrich appends page-level math to rawText. MathPix is preferred; the offline
// backend is tried when MathPix is unavailable or returns nothing. Failures
// are logged and never surface: the worst case is the trimmed raw text.
func (a *Adapter) Enrich(ctx context.Context, rawText, imagePath string) string {
    enriched := strings.TrimSpace(rawText)
    if imagePath == "" {
        return enriched
    }

    b64, err := imagerender.EncodeFileBase64(imagePath)
    if err != nil {
        log.Error().Err(err).Str("page", imagePath).Msg("error reading image for math recognition")
        return enriched
    }

    start := time.Now()
    defer func() { metrics.ObserveStage("enrich", time.Since(start)) }()

    if latex := a.callMathpix(ctx, b64); latex != "" {
        metrics.IncMath(MathpixName, "ok")
        return enriched + "\n\n\\[\n" + latex + "\n\\]"
    }

    if !a.UseFreeBackend || a.Offline == nil {
        return enriched
    }
    res, err := a.Offline.Recognize(ctx, imagePath)
    switch {
    case errors.Is(err, ErrOfflineDisabled):
        metrics.IncMath(OfflineName, "disabled")
    case err != nil:
        metrics.IncMath(OfflineName, "error")
        log.Warn().Err(err).Str("page", imagePath).Msg("offline math fallback failed")
    case strings.TrimSpace(res) != "":
        metrics.IncMath(OfflineName, "ok")
        enriched += "\n\n" + strings.TrimSpace(res)
    default:
        metrics.IncMath(OfflineName, "empty")
    }
    return enriched
}

func (a *Adapter) callMathpix(ctx context.Context, b64 string) string {
    if !a.Mathpix.Configured() {
        log.Warn().Msg("MathPix credentials not set; skipping math recognition")
        metrics.IncMath(MathpixName, "skipped")
        return ""
    }
    if !a.MathpixBreaker.Allow() {
        log.Debug().Msg("MathPix circuit open; skipping")
        metrics.IncMath(MathpixName, "circuit_open")
        return ""
    }
    latex, err := a.Mathpix.Recognize(ctx, b64)
    a.MathpixBreaker.Record(err)
    if err != nil {
        log.Error().Err(err).Msg("MathPix API error")
        metrics.IncMath(MathpixName, "error")
        return ""
    }
    if latex == "" {
        metrics.IncMath(MathpixName, "empty")
    }
    return latex
}

func secondsOr(sec, def int) time.Duration {
    if sec <= 0 {
        sec = def
    }
    return time.Duration(sec) * time.Second
}
