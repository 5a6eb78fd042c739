//go:build !linux && !windows

package keystroke

import (
	"context"
	"log/slog"
)

// StubSource is used on unsupported platforms.
type StubSource struct{}

func newPlatformSource(Options, *slog.Logger) Source {
	return StubSource{}
}

func (StubSource) Available() (bool, string) {
	return false, "key event capture not implemented for this platform"
}

func (StubSource) Start(context.Context, Handler) error {
	return ErrNotAvailable
}

func (StubSource) Stop() error {
	return nil
}
