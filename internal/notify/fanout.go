package notify

import (
	"context"
	"errors"
)

// Fanout publishes to every channel and fails only if all of them fail.
type Fanout []Channel

func (f Fanout) Publish(ctx context.Context, targetStaffID string, p Payload) error {
	var errs []error
	for _, ch := range f {
		if err := ch.Publish(ctx, targetStaffID, p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(f) > 0 && len(errs) == len(f) {
		return errors.Join(errs...)
	}
	return nil
}
