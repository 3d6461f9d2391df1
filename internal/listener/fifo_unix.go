//go:build unix

package listener

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

const fifoReadFlags = os.O_RDWR

func ensureFIFO(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.Mode()&os.ModeNamedPipe == 0 && !info.Mode().IsRegular() {
			return fmt.Errorf("pipe path %s is neither a FIFO nor a file", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat pipe %s: %w", path, err)
	}
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		return fmt.Errorf("create pipe %s: %w", path, err)
	}
	return nil
}
