package orchestrator

import (
    "context"
    "errors"
    "fmt"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"

    "github.com/local/texform/internal/imagerender"
    "github.com/local/texform/internal/latex"
    "github.com/local/texform/internal/metrics"
)

// PageRecognizer is the recognition adapter as seen by the pipeline.
type PageRecognizer interface {
    RecognizePage(ctx context.Context, imagePath string) (string, error)
    Enrich(ctx context.Context, rawText, imagePath string) string
}

// PDFCompiler compiles LaTeX source to PDF bytes.
type PDFCompiler interface {
    Compile(ctx context.Context, source string) ([]byte, error)
}

// ErrNoPages is returned when normalization yields nothing to recognize.
var ErrNoPages = errors.New("No pages or images produced from upload.")

// InputError marks failures caused by the uploaded file itself.
type InputError struct{ Err error }

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// Result is the outcome of one conversion. PDF is nil when compilation failed.
type Result struct {
    Latex string
    PDF   []byte
    Pages int
}

// Pipeline runs one upload end to end. Pages are processed sequentially and
// in order; nothing is shared between runs except the recognizer's model.
type Pipeline struct {
    Recognizer PageRecognizer
    Compiler   PDFCompiler // nil skips compilation
    Preamble   latex.PreambleOptions
    DPI        int
}

// Run normalizes uploadPath into page images under workDir, recognizes and
// enriches each page, assembles the document and tries to compile it.
// workDir is owned by the caller.
func (p *Pipeline) Run(ctx context.Context, uploadPath, workDir string) (Result, error) {
    lg := loggerFrom(ctx)

    start := time.Now()
    pages, err := imagerender.PrepareInputImages(uploadPath, filepath.Join(workDir, "pages"), p.DPI)
    metrics.ObserveStage("normalize", time.Since(start))
    if err != nil {
        if errors.Is(err, imagerender.ErrUnsupportedFormat) {
            return Result{}, &InputError{Err: err}
        }
        return Result{}, fmt.Errorf("prepare input images: %w", err)
    }
    if len(pages) == 0 {
        return Result{}, &InputError{Err: ErrNoPages}
    }
    lg.Info().Int("pages", len(pages)).Str("file", filepath.Base(uploadPath)).Msg("input normalized")

    texts := make([]string, 0, len(pages))
    for i, page := range pages {
        if err := ctx.Err(); err != nil {
            return Result{}, err
        }
        raw, err := p.Recognizer.RecognizePage(ctx, page)
        if err != nil {
            lg.Error().Err(err).Int("page", i+1).Msg("page recognition failed")
            return Result{}, fmt.Errorf("page %d: %w", i+1, err)
        }
        texts = append(texts, p.Recognizer.Enrich(ctx, raw, page))
        metrics.IncPages()
        lg.Debug().Int("page", i+1).Int("chars", len(texts[i])).Msg("page done")
    }

    start = time.Now()
    doc := latex.Assemble(strings.Join(texts, "\n\n"), p.Preamble)
    metrics.ObserveStage("assemble", time.Since(start))

    res := Result{Latex: doc, Pages: len(pages)}
    if p.Compiler == nil {
        return res, nil
    }

    start = time.Now()
    pdf, err := p.Compiler.Compile(ctx, doc)
    metrics.ObserveStage("compile", time.Since(start))
    metrics.IncCompile(err == nil)
    if err != nil {
        lg.Warn().Err(err).Msg("PDF compilation failed; returning LaTeX only")
        return res, nil
    }
    res.PDF = pdf
    return res, nil
}

func loggerFrom(ctx context.Context) *zerolog.Logger {
    if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
        return l
    }
    return &log.Logger
}
