package mqtt

import "errors"

// ErrResponseTimeout is returned when no response is received before the timeout.
var ErrResponseTimeout = errors.New("timeout waiting for prediction response")

// ErrRemote wraps the error message returned by a responder.
var ErrRemote = errors.New("remote prediction failed")
