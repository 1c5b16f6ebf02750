package fetch

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindBlocked Kind = "BLOCKED"
	KindTimeout Kind = "TIMEOUT"
	KindNetwork Kind = "NETWORK"
)

// Error is a fetch-layer failure with its classification. The orchestrator
// records the kind as the job failure reason.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a classified fetch error.
func NewError(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// KindOf returns the fetch failure kind in err's chain, or "" if err is not
// a fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// ErrDisallowed marks a URL that configuration or robots.txt forbids.
// Disallowed fetches are skipped, never attempted.
var ErrDisallowed = eris.New("fetch: url disallowed")
