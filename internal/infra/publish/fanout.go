package publish

import (
	"context"
	"errors"

	"github.com/yanqian/solar-forecast/internal/domain/forecast"
)

// Fanout delivers each result to every publisher and joins their errors.
type Fanout []forecast.Publisher

// Publish implements forecast.Publisher.
func (f Fanout) Publish(ctx context.Context, res forecast.Result) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ forecast.Publisher = Fanout(nil)
