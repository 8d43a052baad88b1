//go:build !linux

package transport

import (
	"fmt"
	"os"
	"runtime"
)

func openSerial(path string, baud int) (*os.File, error) {
	return nil, fmt.Errorf("serial console not supported on %s", runtime.GOOS)
}
