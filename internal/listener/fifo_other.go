//go:build !unix

package listener

import (
	"fmt"
	"os"
)

const fifoReadFlags = os.O_RDONLY

// Named pipes are only created on unix; elsewhere the path must exist.
func ensureFIFO(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat pipe %s: %w", path, err)
	}
	return nil
}
