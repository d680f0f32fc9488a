package correlation

import (
	"context"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// MLAdapter is the pluggable, advisory prediction source the engine
// consults once per analyzed event; predictions at or above 0.6 become
// MLDetected candidates. TrainModels, UpdateRule and GetStatistics do not
// interact with it. The default NoopMLAdapter never fires.
type MLAdapter interface {
	Predict(ctx context.Context, event domain.SecurityEvent, history []domain.SecurityEvent) (*MLPrediction, error)
}

// MLPrediction is the adapter's verdict on a single event.
type MLPrediction struct {
	Confidence float64 // 0..1
	Pattern    string
}

// NoopMLAdapter never produces a prediction.
type NoopMLAdapter struct{}

func (NoopMLAdapter) Predict(context.Context, domain.SecurityEvent, []domain.SecurityEvent) (*MLPrediction, error) {
	return nil, nil
}
