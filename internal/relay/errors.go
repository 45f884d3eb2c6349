package relay

import "fmt"

// Error is an HTTP error response from the relay.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay error %d", e.StatusCode)
}

// NetworkError is a transport-level failure reaching the relay: DNS,
// connection or timeout trouble before any HTTP status arrived.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("relay network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
