// Package runtime handles room membership, routing and delivery of signaling events.
// It orchestrates connections without knowing anything about the transport.
package runtime

import (
	"chat-signal/contract"
	"chat-signal/domain"
	"chat-signal/errors"
	"chat-signal/moderation"
	"chat-signal/observability"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

const drainPollInterval = 20 * time.Millisecond

type session struct {
	sink  contract.EventSink
	state domain.ConnectionState
}

// transition moves the session forward, refusing to leave a terminal state.
func (s *session) transition(next domain.ConnectionState) error {
	if !s.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", errors.ErrIllegalTransition, s.state, next)
	}
	s.state = next
	return nil
}

// Orchestrator is the lifecycle manager of connections.
// A connection is admitted with RegisterParticipant, its frames are routed
// with Receive while Joined, and UnregisterParticipant always releases it.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   contract.IRegistry
	router     contract.IRouter
	dispatcher contract.IDispatcher
	monitoring *observability.MonitoringManager
	sessions   map[domain.ConnectionID]*session
	workers    []contract.Worker
	stopped    bool
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	router contract.IRouter,
	dispatcher contract.IDispatcher,
	monitoring *observability.MonitoringManager,
) *Orchestrator {
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		registry:   registry,
		router:     router,
		dispatcher: dispatcher,
		monitoring: monitoring,
		sessions:   make(map[domain.ConnectionID]*session),
	}
}

// Add registers background workers started along with the orchestrator.
func (o *Orchestrator) Add(workers ...contract.Worker) *Orchestrator {
	o.workers = append(o.workers, workers...)
	return o
}

// RegisterParticipant admits the connection into its room.
// An invalid identity is rejected before any membership change.
// A rejected connection is Closed, and leaving on Closed is unconditional.
func (o *Orchestrator) RegisterParticipant(ctx context.Context, sink contract.EventSink) error {
	p := sink.Participant()
	s := &session{sink: sink, state: domain.Connecting}

	if err := p.Validate(); err != nil {
		_ = s.transition(domain.Closed)
		o.registry.Leave(p.RoomID, sink)
		o.monitoring.IncrRejected()
		o.log.Info("Participant rejected",
			"connection_id", p.ConnectionID, "user_id", p.UserID, "room_id", p.RoomID, "error", err)
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		_ = s.transition(domain.Closed)
		o.registry.Leave(p.RoomID, sink)
		o.monitoring.IncrRejected()
		return errors.ErrConnectionClosed
	}
	o.registry.Join(p.RoomID, sink)
	if err := s.transition(domain.Joined); err != nil {
		return err
	}
	o.sessions[p.ConnectionID] = s
	o.monitoring.IncrJoined()

	o.log.Info("Participant joined",
		"connection_id", p.ConnectionID, "user_id", p.UserID, "room_id", p.RoomID)
	return nil
}

// Receive routes one inbound frame of a joined connection to its room.
// Frames of a connection that isn't joined are dropped.
func (o *Orchestrator) Receive(ctx context.Context, sink contract.EventSink, frame []byte) {
	p := sink.Participant()
	if o.state(p.ConnectionID) != domain.Joined {
		o.log.Debug("Frame dropped, connection not joined", "connection_id", p.ConnectionID)
		return
	}
	o.monitoring.IncrFramesReceived()

	routed := o.router.Route(p, frame)
	if len(routed) == 0 {
		o.monitoring.IncrFramesIgnored()
		return
	}
	for _, evt := range routed {
		o.monitoring.IncrEventsRouted()
		// Snapshot first, the registry lock is never held while delivering
		audience := o.registry.Members(evt.RoomID())
		report := o.dispatcher.Deliver(ctx, evt, audience)
		o.monitoring.AddDeliveries(report.Delivered, report.Failed)
	}
}

// UnregisterParticipant marks the connection closed and removes it from its room.
// It is safe to call more than once and for a connection that was never joined.
func (o *Orchestrator) UnregisterParticipant(sink contract.EventSink) {
	p := sink.Participant()

	o.mu.Lock()
	s, ok := o.sessions[p.ConnectionID]
	if ok {
		delete(o.sessions, p.ConnectionID)
		if err := s.transition(domain.Closed); err != nil {
			o.log.Debug("Unexpected state on leave", "connection_id", p.ConnectionID, "error", err)
		}
	}
	o.mu.Unlock()

	// Leave is idempotent, called whatever the state was
	o.registry.Leave(p.RoomID, sink)
	sink.Close()

	if ok {
		o.monitoring.IncrLeft()
		o.log.Info("Participant left",
			"connection_id", p.ConnectionID, "user_id", p.UserID, "room_id", p.RoomID)
	}
}

func (o *Orchestrator) state(id domain.ConnectionID) domain.ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[id]; ok {
		return s.state
	}
	return domain.Closed
}

// Start registers the background workers and runs the supervisor.
// It blocks until ctx is canceled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.supervisor.Add(o.workers...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "workers", len(o.workers))
	o.supervisor.Run(ctx)
	return nil
}

// Stop refuses new participants, closes every live connection and stops the workers.
// Each transport notices its closed sink and unregisters itself.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")

	o.mu.Lock()
	o.stopped = true
	sinks := lo.MapToSlice(o.sessions, func(_ domain.ConnectionID, s *session) contract.EventSink {
		return s.sink
	})
	o.mu.Unlock()

	for _, sink := range sinks {
		sink.Close()
	}
	o.supervisor.Stop()
	o.log.Debug("Orchestrator stopped", "closed_connections", len(sinks))
}

// WaitDrained blocks until every connection has left the registry or ctx is done.
// Used after Stop so write pumps get to send their close frames.
func (o *Orchestrator) WaitDrained(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		if _, connections := o.registry.Size(); connections == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			_, connections := o.registry.Size()
			return fmt.Errorf("%d connections still open: %w", connections, ctx.Err())
		case <-ticker.C:
		}
	}
}

// PrepareModeration loads the embedded censored words and builds the censor.
func PrepareModeration(log *slog.Logger, charReplacement rune) (contract.Censor, error) {
	loader, dir := NewEmbeddedCensoredLoader()
	data, err := loader.LoadAll(dir)
	if err != nil {
		return nil, err
	}

	log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	moderator, err := moderation.NewModerator(data.Words, charReplacement, log)
	if err != nil {
		return nil, err
	}
	return moderator, nil
}
