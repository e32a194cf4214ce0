//go:build !linux

package source

import (
	"fmt"
	"runtime"
)

// OpenLive is only available on Linux.
func OpenLive(opts LiveOptions) (Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("source: live capture is not supported on %s", runtime.GOOS)
}
