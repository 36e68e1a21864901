package recognize

import (
    "context"
    "fmt"
    "strings"
    "sync"

    "github.com/rs/zerolog/log"
    "golang.org/x/sync/singleflight"

    "github.com/local/texform/internal/config"
)

// InitFunc builds the handwriting recognizer.
type InitFunc func(ctx context.Context) (LineRecognizer, error)

// ModelHandle initializes the handwriting recognizer on first use and shares
// it afterwards. Concurrent first callers wait on a single initialization.
// A failed initialization is not cached; the next Get tries again.
type ModelHandle struct {
    init  InitFunc
    group singleflight.Group

    mu  sync.RWMutex
    rec LineRecognizer
}

func NewModelHandle(init InitFunc) *ModelHandle {
    return &ModelHandle{init: init}
}

// Get returns the shared recognizer, initializing it if needed.
func (h *ModelHandle) Get(ctx context.Context) (LineRecognizer, error) {
    if rec := h.cached(); rec != nil {
        return rec, nil
    }
    v, err, _ := h.group.Do("model", func() (any, error) {
        if rec := h.cached(); rec != nil {
            return rec, nil
        }
        rec, err := h.init(ctx)
        if err != nil {
            return nil, err
        }
        h.mu.Lock()
        h.rec = rec
        h.mu.Unlock()
        log.Info().Str("provider", rec.Name()).Msg("handwriting model ready")
        return rec, nil
    })
    if err != nil {
        return nil, fmt.Errorf("initialize handwriting model: %w", err)
    }
    return v.(LineRecognizer), nil
}

func (h *ModelHandle) cached() LineRecognizer {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return h.rec
}

// BackendFromConfig returns an InitFunc for the configured provider.
func BackendFromConfig(res *config.Resolver, cfg config.OCREngineConfig) InitFunc {
    return func(ctx context.Context) (LineRecognizer, error) {
        timeout := secondsOr(cfg.TimeoutSec, 60)
        switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
        case "", TrOCRName:
            return NewTrOCRClient(TrOCRConfig{
                Endpoint: cfg.Endpoint,
                Model:    cfg.ModelName,
                APIKey:   res.Secret("HF_API_TOKEN", "ocr_engine.api_key"),
                Timeout:  timeout,
            })
        case OpenAIName:
            return NewOpenAIClient(OpenAIConfig{
                APIKey:  res.Secret("OPENAI_API_KEY", "ocr_engine.api_key"),
                Model:   cfg.ModelName,
                Timeout: timeout,
            })
        default:
            return nil, fmt.Errorf("unknown ocr provider %q", cfg.Provider)
        }
    }
}
