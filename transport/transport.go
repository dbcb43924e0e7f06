// Package transport carries line-oriented instrument commands over serial
// ports, GPIB controllers or a console stand-in.
package transport

import (
	"errors"
	"time"
)

// A Transport sends single command lines to an instrument and reads its
// replies. Implementations bound every read; a read that exceeds the bound
// returns ErrTimeout.
type Transport interface {
	WriteLine(line string) error
	ReadLine() (string, error)
}

// ErrTimeout is returned by ReadLine when no reply arrived in time.
var ErrTimeout = errors.New("transport: read timeout")

// DefaultReadTimeout is used when no read timeout is configured.
const DefaultReadTimeout = 3 * time.Second
