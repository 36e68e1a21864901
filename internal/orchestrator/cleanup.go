package orchestrator

import (
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
)

// scratch dirs created by the upload handler and the LaTeX compiler
const scratchPrefix = "texform-"

// CleanupTemps removes scratch directories in the system temp dir older than
// maxAge. Per-request cleanup is deferred, so anything found here was left by
// a crashed or killed process.
func CleanupTemps(maxAge time.Duration) int {
    return cleanupIn(os.TempDir(), maxAge)
}

func cleanupIn(dir string, maxAge time.Duration) int {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return 0
    }
    now := time.Now()
    removed := 0
    for _, e := range entries {
        if !e.IsDir() || !strings.HasPrefix(e.Name(), scratchPrefix) {
            continue
        }
        info, err := e.Info()
        if err != nil || now.Sub(info.ModTime()) < maxAge {
            continue
        }
        if err := os.RemoveAll(filepath.Join(dir, e.Name())); err == nil {
            removed++
        }
    }
    if removed > 0 {
        log.Info().Int("removed", removed).Str("dir", dir).Msg("removed stale scratch dirs")
    }
    return removed
}
