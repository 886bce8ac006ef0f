// sink/multi.go
package sink

import (
	"botradar/sensor"

	"go.uber.org/multierr"
)

// Multi hands every event to each sink in order.
type Multi []sensor.EventSink

// Emit calls every sink even if an earlier one fails.
func (m Multi) Emit(ev sensor.Event) error {
	var errs error
	for _, s := range m {
		errs = multierr.Append(errs, s.Emit(ev))
	}
	return errs
}
