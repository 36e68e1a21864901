package main

import (
    "context"
    "fmt"
    "net/http"
    "time"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/texform/internal/filetype"
    "github.com/local/texform/internal/orchestrator"
    web "github.com/local/texform/internal/web"
)

var (
    serveHost string
    servePort int
)

var serveCmd = &cobra.Command{
    Use:   "serve",
    Short: "Start the HTTP API and upload page",
    Long: `Start the texform HTTP server.

Endpoints:
  POST /api/process  - multipart upload (field "file"), returns {"latex", "pdf_base64"}
  GET  /api/health   - liveness check
  GET  /metrics      - prometheus metrics
  GET  /             - upload page`,
    RunE: func(cmd *cobra.Command, args []string) error {
        overrides := map[string]any{}
        if cmd.Flags().Changed("port") {
            overrides["server.port"] = servePort
        }
        if cmd.Flags().Changed("host") {
            overrides["server.host"] = serveHost
        }
        a, err := bootstrap(overrides)
        if err != nil {
            return err
        }
        defer closeApp()

        // leftovers from a previous crash
        orchestrator.CleanupTemps(time.Hour)

        orch := orchestrator.New(orchestrator.Dependencies{
            Pipeline:    a.pipeline,
            Validator:   a.validator(),
            CORSOrigins: a.cfg.Server.CORSOrigins,
        })
        mux := http.NewServeMux()
        orch.RegisterRoutes(mux)
        web.New(a.cfg.Server.MaxUploadMB, filetype.AllowedExtensions).RegisterRoutes(mux)

        addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
        srv := &http.Server{
            Addr:              addr,
            Handler:           orch.Handler(mux),
            ReadHeaderTimeout: 10 * time.Second,
        }

        errCh := make(chan error, 1)
        go func() {
            log.Info().Msgf("HTTP server listening on %s", addr)
            if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
                errCh <- err
            }
            close(errCh)
        }()

        select {
        case err := <-errCh:
            if err != nil {
                log.Error().Err(err).Msg("http server error")
            }
            return err
        case <-cmd.Context().Done():
        }

        // Graceful shutdown
        ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := srv.Shutdown(ctx); err != nil {
            return err
        }
        log.Info().Msg("shutdown complete")
        return nil
    },
}

func init() {
    serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "Host to bind to (overrides server.host)")
    serveCmd.Flags().IntVar(&servePort, "port", 8000, "Port to listen on (overrides server.port and $PORT)")
}
