package sink

import (
	"chat-signal/domain"
	"chat-signal/domain/event"
	"chat-signal/errors"
	"context"
	"log/slog"
	"sync"
)

type OverflowPolicy string

const (
	// OverflowDisconnect closes a recipient whose queue is full.
	OverflowDisconnect OverflowPolicy = "disconnect"
	// OverflowDropOldest evicts the oldest pending delivery to make room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
)

// SocketSink is the outbound queue of one connection.
// The dispatcher pushes deliveries with Consume, the transport write loop
// drains Outbound until Done is closed.
// The queue channel itself is never closed, so a late Consume can't panic.
type SocketSink struct {
	participant domain.Participant
	queue       chan event.Delivery
	done        chan struct{}
	closeOnce   sync.Once
	evictMu     sync.Mutex
	policy      OverflowPolicy
	log         *slog.Logger
}

func NewSocketSink(participant domain.Participant, bufferSize int, policy OverflowPolicy, log *slog.Logger) *SocketSink {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &SocketSink{
		participant: participant,
		queue:       make(chan event.Delivery, bufferSize),
		done:        make(chan struct{}),
		policy:      policy,
		log:         log,
	}
}

func (s *SocketSink) Participant() domain.Participant { return s.participant }

// Consume is called by the dispatcher
// Redirect the delivery through the connection's write loop
func (s *SocketSink) Consume(ctx context.Context, d event.Delivery) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case s.queue <- d:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if s.policy == OverflowDropOldest {
		return s.evictAndPush(d)
	}

	s.log.Warn("Outbound queue full, disconnecting slow recipient",
		"connection_id", s.participant.ConnectionID,
		"user_id", s.participant.UserID,
		"room_id", s.participant.RoomID)
	s.Close()
	return errors.ErrOutboundQueueFull
}

func (s *SocketSink) evictAndPush(d event.Delivery) error {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	for {
		select {
		case s.queue <- d:
			return nil
		case <-s.done:
			return errors.ErrConnectionClosed
		default:
		}
		select {
		case dropped := <-s.queue:
			s.log.Debug("Outbound queue full, dropping oldest delivery",
				"connection_id", s.participant.ConnectionID,
				"kind", dropped.Kind())
		default:
		}
	}
}

// Outbound is drained by the transport write loop.
func (s *SocketSink) Outbound() <-chan event.Delivery { return s.queue }

// Done is closed once the sink is closed.
func (s *SocketSink) Done() <-chan struct{} { return s.done }

// Close is idempotent.
func (s *SocketSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
