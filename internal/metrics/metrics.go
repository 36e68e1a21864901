package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    requests = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "texform",
            Name:      "requests_total",
            Help:      "Processed upload requests by result (ok, invalid, failed)",
        },
        []string{"result"},
    )

    pagesProcessed = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "texform",
            Name:      "pages_processed_total",
            Help:      "Total pages run through recognition",
        },
    )

    linesRecognized = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "texform",
            Name:      "lines_recognized_total",
            Help:      "Total line crops sent to the handwriting model",
        },
    )

    stageLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "texform",
            Name:      "stage_duration_seconds",
            Help:      "Duration of pipeline stages",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"stage"},
    )

    mathEnrichment = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "texform",
            Name:      "math_enrichment_total",
            Help:      "Math enrichment attempts by backend and result",
        },
        []string{"backend", "result"},
    )

    compiles = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "texform",
            Name:      "compile_total",
            Help:      "LaTeX compilations by result (ok, failed)",
        },
        []string{"result"},
    )

    once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    once.Do(func() {
        prometheus.MustRegister(requests, pagesProcessed, linesRecognized, stageLatency, mathEnrichment, compiles)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncRequest(result string) { requests.WithLabelValues(result).Inc() }
func IncPages()                { pagesProcessed.Inc() }
func AddLines(n int)           { linesRecognized.Add(float64(n)) }

func ObserveStage(stage string, dur time.Duration) {
    stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
}

func IncMath(backend, result string) { mathEnrichment.WithLabelValues(backend, result).Inc() }

func IncCompile(ok bool) {
    if ok {
        compiles.WithLabelValues("ok").Inc()
        return
    }
    compiles.WithLabelValues("failed").Inc()
}
