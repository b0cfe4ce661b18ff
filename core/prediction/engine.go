package prediction

import (
	"context"

	"github.com/kilianp07/eta/core/model"
)

// Request asks for the delivery time of one order.
type Request struct {
	// RequestID is generated by the engine when empty.
	RequestID string           `json:"request_id"`
	Source    string           `json:"-"`
	Row       model.FeatureRow `json:"row"`
}

// Response carries the estimate for a Request.
type Response struct {
	RequestID string  `json:"request_id"`
	Minutes   float64 `json:"minutes"`
	Display   string  `json:"display"`
}

// Engine serves delivery time estimates. Implementations must be safe for
// concurrent use by every transport.
type Engine interface {
	Predict(ctx context.Context, req Request) (Response, error)
}
