package openf1

import (
	"errors"
	"fmt"
)

// ErrUpstreamTimeout is returned when the upstream API did not answer in time
var ErrUpstreamTimeout = errors.New("openf1: upstream timeout")

// UpstreamError reports a non-success response or an unusable payload
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("openf1 %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("openf1 %s: status %d - %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
