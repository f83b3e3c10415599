package flickr

import (
	"errors"
	"fmt"
)

// Sentinel errors for Flickr operations.
var (
	ErrTooLarge     = errors.New("flickr: response body too large")
	ErrUnknownShape = errors.New("flickr: unrecognized response shape")
)

// TransportError reports a request that never produced a usable body:
// network failure, timeout, non-2xx status or an oversized response.
type TransportError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("flickr GET %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("flickr GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError reports a body that could not be turned into photo records.
// Code and Message are set when Flickr itself answered with stat "fail".
type ParseError struct {
	Code    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("flickr api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("flickr parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
