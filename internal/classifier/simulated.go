package classifier

import "context"

// SimulatedResult is what Simulated returns for every request.
var SimulatedResult = Result{Label: "Powdery Mildew", Accuracy: "92%"}

// Simulated answers every prediction locally without contacting a backend.
type Simulated struct{}

// Predict returns a copy of SimulatedResult.
func (Simulated) Predict(ctx context.Context, req UploadRequest) (*Result, error) {
	result := SimulatedResult
	return &result, nil
}
