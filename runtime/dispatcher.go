package runtime

import (
	"chat-signal/contract"
	"chat-signal/domain/event"
	"chat-signal/errors"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Dispatcher delivers a routed event to a room snapshot.
//
// Delivery is best-effort and at most once per recipient. A failing recipient
// (closed, full, slow or panicking) is logged and counted, it never prevents
// the others from receiving.
//
// Recipients are served one after the other on the caller's goroutine so that
// two events of the same sender reach every recipient in order.
type Dispatcher struct {
	log             *slog.Logger
	deliveryTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, deliveryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{log: log, deliveryTimeout: deliveryTimeout}
}

func (d *Dispatcher) Deliver(ctx context.Context, evt event.Outbound, audience []contract.EventSink) contract.Report {
	var report contract.Report
	for _, sink := range audience {
		recipient := sink.Participant()
		delivery, ok := evt.For(recipient.UserID)
		if !ok {
			report.Filtered++
			continue
		}
		if err := d.consume(ctx, sink, delivery); err != nil {
			report.Failed++
			d.log.Warn("Delivery failed",
				"kind", evt.Kind,
				"room_id", evt.Room,
				"connection_id", recipient.ConnectionID,
				"user_id", recipient.UserID,
				"error", err)
			continue
		}
		report.Delivered++
	}

	if evt.Kind == event.SDPAnswer && report.Delivered == 0 && report.Failed == 0 {
		d.log.Debug("Answer receiver not in room",
			"room_id", evt.Room, "sender", evt.Sender, "receiver", evt.Receiver)
	}
	return report
}

// consume bounds one delivery in time and turns a sink panic into an error.
func (d *Dispatcher) consume(ctx context.Context, sink contract.EventSink, delivery event.Delivery) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrSinkPanic, r)
		}
	}()
	return sink.Consume(ctx, delivery)
}
