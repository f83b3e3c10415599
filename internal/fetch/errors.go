package fetch

import (
	"errors"
	"fmt"
)

// ErrMissingImageURL is the panic value raised by FetchImage when a photo
// has neither a cached image nor a remote URL.
var ErrMissingImageURL = errors.New("fetch: photo has no remote image url")

// ErrClosed is reported to completions requested after Close.
var ErrClosed = errors.New("fetch: coordinator closed")

type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindParse
	KindDecode
	KindStore
	KindCache
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	case KindDecode:
		return "decode"
	case KindStore:
		return "store"
	case KindCache:
		return "cache"
	default:
		return "unknown"
	}
}

// FetchError tags a failure with the pipeline stage that produced it.
type FetchError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the stage of a FetchError anywhere in err's chain, or zero.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
