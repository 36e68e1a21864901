package web

import (
    "embed"
    "html/template"
    "net/http"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Web struct {
    tpl       *template.Template
    maxMB     int
    allowed   []string
}

func New(maxUploadMB int, allowed []string) *Web {
    tpl := template.Must(template.ParseFS(templatesFS, "templates/*.html"))
    return &Web{tpl: tpl, maxMB: maxUploadMB, allowed: allowed}
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/", w.handleIndex)
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
    wr.Header().Set("Content-Type", "text/html; charset=utf-8")
    if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
        http.Error(wr, "template error", http.StatusInternalServerError)
    }
}

func (w *Web) handleIndex(wr http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/" {
        http.NotFound(wr, r); return
    }
    if r.Method != http.MethodGet && r.Method != http.MethodHead {
        wr.WriteHeader(http.StatusMethodNotAllowed); return
    }
    w.render(wr, "index.html", map[string]any{
        "MaxMB":   w.maxMB,
        "Allowed": w.allowed,
    })
}
