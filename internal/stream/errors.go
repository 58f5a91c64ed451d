package stream

import "fmt"

// TransportError ends a connection: dial failures, read errors and server
// closes. It is reported exactly once per connection.
type TransportError struct {
	Endpoint Endpoint
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: transport error: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports one malformed frame. The connection keeps running.
type DecodeError struct {
	Endpoint Endpoint
	Event    string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("stream %s: malformed frame: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("stream %s: malformed %q frame: %v", e.Endpoint, e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
