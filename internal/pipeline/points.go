package pipeline

import (
	"context"

	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// PointsReporter reads the user's point balance
type PointsReporter struct {
	api    API
	logger *log.Logger
}

// NewPointsReporter creates a PointsReporter
func NewPointsReporter(api API, logger *log.Logger) *PointsReporter {
	return &PointsReporter{api: api, logger: logger}
}

// Fetch returns the balance and true, or 0 and false after logging the failure
func (p *PointsReporter) Fetch(ctx context.Context, token string) (float64, bool) {
	loyalty, err := p.api.Loyalty(ctx, token)
	if err != nil {
		p.logger.WithError(errors.Wrap(err, errors.ErrorTypePoints, "fetch_points", "failed to get points")).
			Warn("error getting points")
		return 0, false
	}

	p.logger.Info("total points", "points", loyalty.User.Points)
	return loyalty.User.Points, true
}
