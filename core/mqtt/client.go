package mqtt

import (
	"time"

	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/prediction"
)

// Requester publishes prediction requests on the broker and waits for the
// matching response published by a responder.
type Requester interface {
	// SendRequest publishes row and returns the request identifier used to
	// correlate the response.
	SendRequest(row model.FeatureRow) (requestID string, err error)

	// WaitForResponse waits for the response of the provided request
	// identifier or until the timeout expires.
	WaitForResponse(requestID string, timeout time.Duration) (prediction.Response, error)
}

// RequestMessage is the payload published on the request topic.
type RequestMessage struct {
	RequestID string           `json:"request_id"`
	Row       model.FeatureRow `json:"row"`
}

// ResponseMessage is the payload published on the response topic of a request.
type ResponseMessage struct {
	RequestID string  `json:"request_id"`
	Minutes   float64 `json:"minutes"`
	Display   string  `json:"display,omitempty"`
	Error     string  `json:"error,omitempty"`
}
