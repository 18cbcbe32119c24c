package crawler

import (
	"errors"
	"fmt"
)

// FetchError reports a failed HTTP fetch. Transient failures (network
// errors, timeouts, 5xx responses) are retried by the fetcher before being
// surfaced; permanent failures (4xx responses) are not.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransientFetch reports whether err is a retryable fetch failure.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// PayloadError reports a malformed upstream payload or a vendor envelope
// whose success discriminator did not validate. Never retried.
type PayloadError struct {
	Source string
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s payload: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s payload: %s", e.Source, e.Reason)
}

func (e *PayloadError) Unwrap() error { return e.Err }
