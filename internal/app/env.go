package app

import (
    "errors"
    "fmt"
    "os"
    "strings"

    "github.com/joho/godotenv"
)

// LoadEnvFiles loads dotenv files into the process environment. Later files
// override earlier ones; missing files are skipped.
func LoadEnvFiles(paths ...string) error {
    for _, p := range paths {
        if strings.TrimSpace(p) == "" {
            continue
        }
        if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
            continue
        }
        if err := godotenv.Overload(p); err != nil {
            return fmt.Errorf("load env file %s: %w", p, err)
        }
    }
    return nil
}
