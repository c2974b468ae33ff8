package exitlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName returns log_<YYYY-MM-DD_HH-MM-SS>.txt for t in UTC.
func FileName(t time.Time) string {
	return "log_" + t.UTC().Format("2006-01-02_15-04-05") + ".txt"
}

// Write records the process exit in dir and returns the file path.
func Write(dir string, t time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(t))
	line := fmt.Sprintf("[%s] Application exited\n", t.UTC().Format(time.RFC3339Nano))
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
