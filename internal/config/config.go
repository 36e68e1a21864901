package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
    "github.com/spf13/viper"
)

const (
    DefaultFile = "default.yaml"
    SecretsFile = "secrets.yaml"
)

// ServerConfig holds HTTP boundary settings.
type ServerConfig struct {
    Host        string   `mapstructure:"host"`
    Port        int      `mapstructure:"port"`
    MaxUploadMB int      `mapstructure:"max_upload_mb"`
    CORSOrigins []string `mapstructure:"cors_origins"`
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
    Send          bool          `mapstructure:"send"`
    APIKey        string        `mapstructure:"api_key"`
    OrgID         string        `mapstructure:"org_id"`
    Dataset       string        `mapstructure:"dataset"`
    FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string      `mapstructure:"level"`
    Pretty     bool        `mapstructure:"pretty"`
    File       string      `mapstructure:"file"`
    MaxSizeMB  int         `mapstructure:"max_size_mb"`
    MaxBackups int         `mapstructure:"max_backups"`
    MaxAgeDays int         `mapstructure:"max_age_days"`
    Compress   bool        `mapstructure:"compress"`
    Axiom      AxiomConfig `mapstructure:"axiom"`
}

// OCREngineConfig configures the handwriting line recognizer.
type OCREngineConfig struct {
    Provider   string `mapstructure:"provider"` // "trocr" | "openai"
    ModelName  string `mapstructure:"model_name"`
    Endpoint   string `mapstructure:"endpoint"`
    APIKey     string `mapstructure:"api_key"`
    Device     string `mapstructure:"device"`
    MaxLength  int    `mapstructure:"max_length"`
    NumBeams   int    `mapstructure:"num_beams"`
    TimeoutSec int    `mapstructure:"timeout"`
}

// PDFConfig configures rasterization.
type PDFConfig struct {
    DPI int `mapstructure:"dpi"`
}

// SegmentationConfig tunes the projection-profile line splitter.
type SegmentationConfig struct {
    MinLineHeight   int     `mapstructure:"min_line_height"`
    Padding         int     `mapstructure:"padding"`
    ThresholdOffset float64 `mapstructure:"threshold_offset"`
    ThresholdFloor  float64 `mapstructure:"threshold_floor"`
    InkRatio        float64 `mapstructure:"ink_ratio"`
}

// MathRecognitionConfig configures page-level math enrichment.
type MathRecognitionConfig struct {
    APIURL          string `mapstructure:"api_url"`
    TimeoutSec      int    `mapstructure:"timeout"`
    IncludeLatex    bool   `mapstructure:"include_latex"`
    IncludeMathML   bool   `mapstructure:"include_mathml"`
    UseFreeBackend  bool   `mapstructure:"use_free_backend"`
    FreeBackendLang string `mapstructure:"free_backend_lang"`
    // CircuitBreaker lets a MathPix outage skip MathPix for later pages.
    CircuitBreaker bool `mapstructure:"circuit_breaker"`
}

// MathpixConfig holds the commercial math-OCR credential pair.
type MathpixConfig struct {
    AppID  string `mapstructure:"app_id"`
    AppKey string `mapstructure:"app_key"`
}

// PageGeometry mirrors the geometry package options.
type PageGeometry struct {
    Margin string `mapstructure:"margin"`
}

// LatexConfig holds preamble fields and compiler switches.
type LatexConfig struct {
    DocumentClass     string       `mapstructure:"document_class"`
    FontSize          string       `mapstructure:"font_size"`
    PageGeometry      PageGeometry `mapstructure:"page_geometry"`
    Title             string       `mapstructure:"title"`
    Author            string       `mapstructure:"author"`
    Date              string       `mapstructure:"date"`
    UseLatexmk        bool         `mapstructure:"use_latexmk"`
    CompileTimeoutSec int          `mapstructure:"compile_timeout"`
}

// Config is the typed view of the merged settings.
type Config struct {
    Server          ServerConfig          `mapstructure:"server"`
    Logging         LoggingConfig         `mapstructure:"logging"`
    OCREngine       OCREngineConfig       `mapstructure:"ocr_engine"`
    PDF             PDFConfig             `mapstructure:"pdf_utils"`
    Segmentation    SegmentationConfig    `mapstructure:"segmentation"`
    MathRecognition MathRecognitionConfig `mapstructure:"math_recognition"`
    Mathpix         MathpixConfig         `mapstructure:"mathpix"`
    Latex           LatexConfig           `mapstructure:"latex_generator"`
}

// Resolver is the merged settings document (defaults + secrets overlay).
// It is built once at startup and only read afterwards.
type Resolver struct {
    v *viper.Viper
}

// Load reads <dir>/default.yaml and overlays <dir>/secrets.yaml on top of it.
// Missing files are fine; unreadable or malformed ones are logged and skipped.
func Load(dir string) (*Resolver, error) {
    v := viper.New()
    v.SetConfigType("yaml")
    setDefaults(v)
    bindEnv(v)

    defaults := filepath.Join(dir, DefaultFile)
    if fileExists(defaults) {
        v.SetConfigFile(defaults)
        if err := v.ReadInConfig(); err != nil {
            log.Warn().Err(err).Str("file", defaults).Msg("could not load config file; using built-in defaults")
        }
    }

    secrets := filepath.Join(dir, SecretsFile)
    if fileExists(secrets) {
        v.SetConfigFile(secrets)
        if err := v.MergeInConfig(); err != nil {
            log.Warn().Err(err).Str("file", secrets).Msg("could not merge secrets file")
        }
    }

    r := &Resolver{v: v}
    if _, err := r.Config(); err != nil {
        return nil, err
    }
    return r, nil
}

// New returns a Resolver holding only the built-in defaults.
func New() *Resolver {
    v := viper.New()
    setDefaults(v)
    bindEnv(v)
    return &Resolver{v: v}
}

// Get looks up a dotted path such as "pdf_utils.dpi". Missing paths return nil.
func (r *Resolver) Get(path string) any {
    path = strings.TrimSpace(path)
    if path == "" || !r.v.IsSet(path) {
        return nil
    }
    return r.v.Get(path)
}

// GetString returns the value at path or def when missing or empty.
func (r *Resolver) GetString(path, def string) string {
    if r.Get(path) == nil {
        return def
    }
    return r.v.GetString(path)
}

// GetInt returns the value at path or def when missing.
func (r *Resolver) GetInt(path string, def int) int {
    if r.Get(path) == nil {
        return def
    }
    return r.v.GetInt(path)
}

// GetBool returns the value at path or def when missing.
func (r *Resolver) GetBool(path string, def bool) bool {
    if r.Get(path) == nil {
        return def
    }
    return r.v.GetBool(path)
}

// GetDuration returns the value at path or def when missing. Plain numbers
// are read as seconds, strings as Go durations ("10s", "2m").
func (r *Resolver) GetDuration(path string, def time.Duration) time.Duration {
    switch val := r.Get(path).(type) {
    case nil:
        return def
    case int:
        return time.Duration(val) * time.Second
    case int64:
        return time.Duration(val) * time.Second
    case float64:
        return time.Duration(val * float64(time.Second))
    }
    return r.v.GetDuration(path)
}

// Set overrides a single key; used by CLI flags.
func (r *Resolver) Set(path string, value any) { r.v.Set(path, value) }

// Config decodes the merged document into the typed Config.
func (r *Resolver) Config() (Config, error) {
    var cfg Config
    if err := r.v.Unmarshal(&cfg); err != nil {
        return Config{}, fmt.Errorf("decode config: %w", err)
    }
    return cfg, nil
}

// MathpixCredentials returns (app_id, app_key). Environment variables win over
// the settings file and placeholder values count as unset.
func (r *Resolver) MathpixCredentials() (string, string) {
    id := r.Secret("MATHPIX_APP_ID", "mathpix.app_id")
    key := r.Secret("MATHPIX_APP_KEY", "mathpix.app_key")
    return id, key
}

// Secret resolves a credential from envKey first, then the dotted config path.
func (r *Resolver) Secret(envKey, path string) string {
    if v := strings.TrimSpace(os.Getenv(envKey)); !IsPlaceholder(v) {
        return v
    }
    v := strings.TrimSpace(r.GetString(path, ""))
    if IsPlaceholder(v) {
        return ""
    }
    return v
}

// IsPlaceholder reports whether a credential value is empty or a template
// marker like "<YOUR_MATHPIX_APP_ID>".
func IsPlaceholder(v string) bool {
    v = strings.TrimSpace(v)
    if v == "" {
        return true
    }
    return strings.HasPrefix(v, "<YOUR_") && strings.HasSuffix(v, ">")
}

// ErrNoConfigDir is returned by Dir when no candidate directory exists.
var ErrNoConfigDir = errors.New("config directory not found")

// Dir picks the config directory: explicit value, CONFIG_DIR, then ./config.
func Dir(explicit string) (string, error) {
    for _, d := range []string{explicit, getEnv("CONFIG_DIR", ""), "config"} {
        if d == "" {
            continue
        }
        if st, err := os.Stat(d); err == nil && st.IsDir() {
            return d, nil
        }
    }
    return "", ErrNoConfigDir
}

func fileExists(p string) bool {
    st, err := os.Stat(p)
    return err == nil && !st.IsDir()
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("server.host", "0.0.0.0")
    v.SetDefault("server.port", 8000)
    v.SetDefault("server.max_upload_mb", 50)
    v.SetDefault("server.cors_origins", []string{"*"})

    v.SetDefault("logging.level", "info")
    v.SetDefault("logging.pretty", devDefaultPretty())
    v.SetDefault("logging.file", "logs/texform.log")
    v.SetDefault("logging.max_size_mb", 100)
    v.SetDefault("logging.max_backups", 10)
    v.SetDefault("logging.max_age_days", 30)
    v.SetDefault("logging.compress", true)
    v.SetDefault("logging.axiom.send", false)
    v.SetDefault("logging.axiom.api_key", "")
    v.SetDefault("logging.axiom.org_id", "")
    v.SetDefault("logging.axiom.dataset", "dev_texform")
    v.SetDefault("logging.axiom.flush_interval", "10s")

    v.SetDefault("ocr_engine.provider", "trocr")
    v.SetDefault("ocr_engine.model_name", "microsoft/trocr-base-handwritten")
    v.SetDefault("ocr_engine.endpoint", "https://api-inference.huggingface.co/models")
    v.SetDefault("ocr_engine.device", "")
    v.SetDefault("ocr_engine.max_length", 512)
    v.SetDefault("ocr_engine.num_beams", 4)
    v.SetDefault("ocr_engine.timeout", 0)

    v.SetDefault("pdf_utils.dpi", 200)

    v.SetDefault("segmentation.min_line_height", 15)
    v.SetDefault("segmentation.padding", 4)
    v.SetDefault("segmentation.threshold_offset", 30.0)
    v.SetDefault("segmentation.threshold_floor", 80.0)
    v.SetDefault("segmentation.ink_ratio", 0.01)

    v.SetDefault("math_recognition.api_url", "https://api.mathpix.com/v3/latex")
    v.SetDefault("math_recognition.timeout", 30)
    v.SetDefault("math_recognition.include_latex", true)
    v.SetDefault("math_recognition.include_mathml", false)
    v.SetDefault("math_recognition.use_free_backend", true)
    v.SetDefault("math_recognition.free_backend_lang", "eng+equ")
    v.SetDefault("math_recognition.circuit_breaker", false)

    v.SetDefault("latex_generator.document_class", "article")
    v.SetDefault("latex_generator.font_size", "12pt")
    v.SetDefault("latex_generator.page_geometry.margin", "1in")
    v.SetDefault("latex_generator.title", "Converted Notes")
    v.SetDefault("latex_generator.author", "")
    v.SetDefault("latex_generator.date", `\today`)
    v.SetDefault("latex_generator.use_latexmk", true)
    v.SetDefault("latex_generator.compile_timeout", 120)
}

// envKeys maps environment variables onto settings keys. A set variable wins
// over both settings files.
var envKeys = map[string]string{
    "server.port":                 "PORT",
    "logging.level":               "LOG_LEVEL",
    "logging.pretty":              "LOG_PRETTY",
    "logging.axiom.send":          "SEND_LOGS_TO_AXIOM",
    "logging.axiom.api_key":       "AXIOM_API_KEY",
    "logging.axiom.org_id":        "AXIOM_ORG_ID",
    "logging.axiom.dataset":       "AXIOM_DATASET",
    "pdf_utils.dpi":               "TEXFORM_DPI",
    "ocr_engine.provider":         "TEXFORM_OCR_PROVIDER",
    "latex_generator.use_latexmk": "TEXFORM_USE_LATEXMK",
}

func bindEnv(v *viper.Viper) {
    for key, env := range envKeys {
        _ = v.BindEnv(key, env)
    }
}
