package publish

import (
	"context"

	"github.com/yanqian/solar-forecast/internal/domain/forecast"
)

// Noop discards results when no broker is configured.
type Noop struct{}

// Publish implements forecast.Publisher.
func (Noop) Publish(context.Context, forecast.Result) error { return nil }

var _ forecast.Publisher = Noop{}
