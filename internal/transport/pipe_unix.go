//go:build unix

package transport

import (
	"os"
	"syscall"
)

const pipeOpenFlags = os.O_WRONLY | os.O_APPEND | syscall.O_NONBLOCK
