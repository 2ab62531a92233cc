package config

import (
	"os"
	"path/filepath"
)

// defaultLogDir returns the fallback LogSink location when --log-dir is
// not given: a "solve-logs" directory under the OS temp dir, mirroring
// internal/workspace.SetupTempDir's own "under os.TempDir()" convention
// for per-run state.
func defaultLogDir() string {
	return filepath.Join(os.TempDir(), "solve-logs")
}
