package config

import (
    "os"
    "strings"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"
)

// LoadDotEnv loads variables from .env files into the process environment.
// Existing variables are never overwritten; a missing file is not an error.
func LoadDotEnv(files ...string) {
    if len(files) == 0 {
        files = []string{".env"}
    }
    for _, f := range files {
        if _, err := os.Stat(f); err != nil {
            continue
        }
        if err := godotenv.Load(f); err != nil {
            log.Warn().Err(err).Str("file", f).Msg("failed to load env file")
        }
    }
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func devDefaultPretty() bool {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    return env == "dev" || env == "development" || env == "local"
}
