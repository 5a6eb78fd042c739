//go:build !linux && !darwin && !windows

package analog

import "fmt"

func loadSDK(path string) (sdk, error) {
	return nil, fmt.Errorf("%w: unsupported platform", ErrLibraryNotFound)
}
