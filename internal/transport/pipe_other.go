//go:build !unix

package transport

import "os"

const pipeOpenFlags = os.O_WRONLY | os.O_APPEND
