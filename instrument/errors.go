package instrument

import "fmt"

// ProtocolError reports a reply that does not have the shape expected for
// the command that was sent.
type ProtocolError struct {
	Command  string
	Response string
	Reason   string
}

func (e *ProtocolError) Error() string {
	if e.Response == "" && e.Command == "" {
		return "protocol error: " + e.Reason
	}
	return fmt.Sprintf("protocol error: %s: %s (reply %q)", e.Command, e.Reason, e.Response)
}

// TransportError reports an I/O failure or read timeout while talking to the
// instrument.
type TransportError struct {
	Op      string // "write" or "read"
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Op, e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
