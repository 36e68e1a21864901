package orchestrator

import (
    "encoding/base64"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/texform/internal/filetype"
    "github.com/local/texform/internal/metrics"
)

// multipart framing on top of the file itself
const formOverhead = 1 << 20

type Dependencies struct {
    Pipeline    *Pipeline
    Validator   *filetype.Validator
    CORSOrigins []string
}

type Orchestrator struct {
    deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
    if deps.Validator == nil {
        deps.Validator = filetype.NewValidator(0)
    }
    return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/api/health", o.handleHealth)
    mux.HandleFunc("/api/process", o.handleProcess)
    mux.Handle("/metrics", metrics.Handler())
}

// Handler wraps mux with request ids, access logging and CORS.
func (o *Orchestrator) Handler(mux *http.ServeMux) http.Handler {
    return withRequestID(withCORS(o.deps.CORSOrigins, mux))
}

type processResp struct {
    Latex     string  `json:"latex"`
    PDFBase64 *string `json:"pdf_base64"`
}

type errorResp struct {
    Detail string `json:"detail"`
}

func (o *Orchestrator) handleHealth(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed); return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProcess accepts a multipart upload (field "file"), runs the pipeline
// synchronously and returns LaTeX plus the PDF when compilation succeeded.
func (o *Orchestrator) handleProcess(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed); return
    }
    lg := loggerFrom(r.Context())
    maxBytes := o.deps.Validator.MaxBytes

    r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        var tooBig *http.MaxBytesError
        if errors.As(err, &tooBig) {
            o.reject(w, fmt.Sprintf("File too large. Maximum size: %d MB", maxBytes/(1024*1024)))
            return
        }
        o.reject(w, "invalid multipart form"); return
    }
    defer r.MultipartForm.RemoveAll()

    file, hdr, err := r.FormFile("file")
    if err != nil {
        o.reject(w, "missing file"); return
    }
    defer file.Close()
    content, err := io.ReadAll(file)
    if err != nil {
        o.reject(w, "could not read upload"); return
    }

    ext, err := o.deps.Validator.Validate(hdr.Filename, content)
    if err != nil {
        lg.Info().Err(err).Str("filename", hdr.Filename).Int("size", len(content)).Msg("upload rejected")
        o.reject(w, err.Error()); return
    }
    safeName := filetype.SanitizeFilename(hdr.Filename, ext)

    workDir, err := os.MkdirTemp("", "texform-*")
    if err != nil {
        o.fail(w, fmt.Sprintf("cannot create work dir: %v", err)); return
    }
    defer os.RemoveAll(workDir)

    uploadPath := filepath.Join(workDir, safeName)
    if err := os.WriteFile(uploadPath, content, 0o644); err != nil {
        o.fail(w, fmt.Sprintf("cannot save upload: %v", err)); return
    }

    start := time.Now()
    lg.Info().Str("file", safeName).Int("size", len(content)).Msg("processing upload")
    res, err := o.deps.Pipeline.Run(r.Context(), uploadPath, workDir)
    if err != nil {
        var inErr *InputError
        if errors.As(err, &inErr) {
            o.reject(w, inErr.Error()); return
        }
        lg.Error().Err(err).Msg("processing failed")
        o.fail(w, fmt.Sprintf("Processing failed: %v", err)); return
    }

    resp := processResp{Latex: res.Latex}
    if res.PDF != nil {
        b64 := base64.StdEncoding.EncodeToString(res.PDF)
        resp.PDFBase64 = &b64
    }
    metrics.IncRequest("ok")
    lg.Info().Int("pages", res.Pages).Bool("pdf", res.PDF != nil).Dur("dur", time.Since(start)).Msg("upload processed")
    writeJSON(w, http.StatusOK, resp)
}

func (o *Orchestrator) reject(w http.ResponseWriter, detail string) {
    metrics.IncRequest("invalid")
    writeJSON(w, http.StatusBadRequest, errorResp{Detail: detail})
}

func (o *Orchestrator) fail(w http.ResponseWriter, detail string) {
    metrics.IncRequest("failed")
    writeJSON(w, http.StatusInternalServerError, errorResp{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func withRequestID(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        id := r.Header.Get("X-Request-ID")
        if id == "" {
            id = uuid.NewString()
        }
        w.Header().Set("X-Request-ID", id)
        lg := log.With().Str("request_id", id).Logger()
        start := time.Now()
        next.ServeHTTP(w, r.WithContext(lg.WithContext(r.Context())))
        lg.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("dur", time.Since(start)).Msg("request")
    })
}

func withCORS(origins []string, next http.Handler) http.Handler {
    allowAll := len(origins) == 0
    allowed := make(map[string]bool, len(origins))
    for _, o := range origins {
        if o == "*" {
            allowAll = true
        }
        allowed[o] = true
    }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        origin := r.Header.Get("Origin")
        if origin != "" && (allowAll || allowed[origin]) {
            w.Header().Set("Access-Control-Allow-Origin", origin)
            w.Header().Set("Access-Control-Allow-Credentials", "true")
            w.Header().Add("Vary", "Origin")
        }
        if r.Method == http.MethodOptions && origin != "" {
            w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
            reqHeaders := r.Header.Get("Access-Control-Request-Headers")
            if reqHeaders == "" {
                reqHeaders = strings.Join([]string{"Content-Type", "X-Request-ID"}, ", ")
            }
            w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}
