package main

import (
    "errors"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    cfgpkg "github.com/local/texform/internal/config"
    "github.com/local/texform/internal/filetype"
    "github.com/local/texform/internal/latex"
    logpkg "github.com/local/texform/internal/logger"
    "github.com/local/texform/internal/metrics"
    "github.com/local/texform/internal/orchestrator"
    "github.com/local/texform/internal/recognize"
)

var (
    configDir string
    envFile   string
)

var rootCmd = &cobra.Command{
    Use:   "texform",
    Short: "Convert handwritten notes (PDF or images) to LaTeX and PDF",
    Long: `texform turns scanned handwritten notes into a LaTeX document.

Each page is split into text lines, every line is transcribed by a
handwriting model, page-level math is recognized with MathPix (or an
offline fallback), and the result is assembled into a .tex file that is
compiled to PDF when a TeX toolchain is installed.`,
    SilenceUsage: true,
}

func init() {
    rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding default.yaml and secrets.yaml (default: $CONFIG_DIR or ./config)")
    rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading config")

    rootCmd.AddCommand(serveCmd, convertCmd)
}

// app is everything a command needs after bootstrap.
type app struct {
    res      *cfgpkg.Resolver
    cfg      cfgpkg.Config
    pipeline *orchestrator.Pipeline
}

// bootstrap loads env and settings, initializes logging and metrics, and
// wires the pipeline. Call closeApp when done.
func bootstrap(overrides map[string]any) (*app, error) {
    cfgpkg.LoadDotEnv(envFile)

    dir, err := cfgpkg.Dir(configDir)
    if err != nil && !errors.Is(err, cfgpkg.ErrNoConfigDir) {
        return nil, err
    }
    var res *cfgpkg.Resolver
    if dir == "" {
        res = cfgpkg.New()
    } else if res, err = cfgpkg.Load(dir); err != nil {
        return nil, err
    }
    for k, v := range overrides {
        res.Set(k, v)
    }
    cfg, err := res.Config()
    if err != nil {
        return nil, err
    }

    if err := logpkg.Init(logpkg.FromConfig(cfg.Logging)); err != nil {
        log.Warn().Err(err).Msg("logger sink unavailable; continuing with console output")
    }
    if dir == "" {
        log.Warn().Msg("no config directory found; using built-in defaults")
    } else {
        log.Info().Str("dir", dir).Msg("config loaded")
    }
    metrics.Init()

    adapter, err := recognize.NewAdapter(res)
    if err != nil {
        return nil, err
    }
    return &app{
        res: res,
        cfg: cfg,
        pipeline: &orchestrator.Pipeline{
            Recognizer: adapter,
            Compiler:   latex.NewCompiler(cfg.Latex),
            Preamble:   latex.PreambleFromConfig(cfg.Latex),
            DPI:        cfg.PDF.DPI,
        },
    }, nil
}

func (a *app) validator() *filetype.Validator {
    return filetype.NewValidator(int64(a.cfg.Server.MaxUploadMB) * 1024 * 1024)
}

func closeApp() { logpkg.Close() }
