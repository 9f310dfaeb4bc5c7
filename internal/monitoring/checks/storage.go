package checks

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/eternalmemory/eternal/internal/monitoring"
)

// LocalStorage verifies the upload directory exists. Object storage backends are not
// probed; an empty dir skips the check.
func LocalStorage(dir string) monitoring.Check {
	return monitoring.NewCheck("storage", func(context.Context) monitoring.ProbeResult {
		start := time.Now()
		if dir == "" {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "remote", Duration: time.Since(start)}
		}
		info, err := os.Stat(dir)
		if err == nil && !info.IsDir() {
			err = errors.New(dir + " is not a directory")
		}
		return monitoring.ResultFromError("storage", err, time.Since(start))
	})
}
