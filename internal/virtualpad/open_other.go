//go:build !linux && !windows

package virtualpad

import (
	"fmt"
	"log/slog"
	"runtime"
)

const platformBackend = "unsupported"

func openPlatform(backend string, opts Options, logger *slog.Logger) (Device, error) {
	return nil, fmt.Errorf("%w: no virtual controller bus on %s", ErrNotAvailable, runtime.GOOS)
}
