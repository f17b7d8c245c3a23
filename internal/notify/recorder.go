package notify

import (
	"context"
	"sync"
)

type Delivery struct {
	TargetStaffID string
	Payload       Payload
}

// Recorder keeps every published payload in memory. Used in tests and local runs.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	failNext   error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, targetStaffID string, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.deliveries = append(r.deliveries, Delivery{TargetStaffID: targetStaffID, Payload: p})
	return nil
}

// FailNext makes the next Publish return err without recording.
func (r *Recorder) FailNext(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// For returns the deliveries addressed to one staff member.
func (r *Recorder) For(staffID string) []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries() {
		if d.TargetStaffID == staffID {
			out = append(out, d)
		}
	}
	return out
}
