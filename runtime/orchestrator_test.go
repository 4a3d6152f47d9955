package runtime_test

import (
	"chat-signal/contract"
	"chat-signal/domain"
	"chat-signal/domain/event"
	"chat-signal/errors"
	"chat-signal/mocks"
	"chat-signal/observability"
	"chat-signal/runtime"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	orchestrator *runtime.Orchestrator
	supervisor   *mocks.MockISupervisor
	registry     *mocks.MockIRegistry
	router       *mocks.MockIRouter
	dispatcher   *mocks.MockIDispatcher
	monitoring   *observability.MonitoringManager
}

func newFixture(t *testing.T) (*gomock.Controller, fixture) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	f := fixture{
		supervisor: mocks.NewMockISupervisor(ctrl),
		registry:   mocks.NewMockIRegistry(ctrl),
		router:     mocks.NewMockIRouter(ctrl),
		dispatcher: mocks.NewMockIDispatcher(ctrl),
		monitoring: observability.NewMonitoringManager(log),
	}
	f.orchestrator = runtime.NewOrchestrator(log, f.supervisor, f.registry, f.router, f.dispatcher, f.monitoring)
	return ctrl, f
}

func participantSink(ctrl *gomock.Controller, p domain.Participant) *mocks.MockEventSink {
	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Participant().Return(p).AnyTimes()
	return sink
}

var bob = domain.Participant{ConnectionID: "c-bob", UserID: "bob", RoomID: "lobby"}

func TestOrchestrator_RegisterParticipant_Joins_Room(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()
	sink := participantSink(ctrl, bob)

	// Given the registry expects the connection in its room
	f.registry.EXPECT().Join(domain.RoomID("lobby"), sink).Times(1)

	// When the participant registers
	err := f.orchestrator.RegisterParticipant(context.Background(), sink)

	// Then
	req.NoError(err)
	req.Equal(uint64(1), f.monitoring.GetLatest().Joined)
}

func TestOrchestrator_RegisterParticipant_Rejects_Invalid_Identity(t *testing.T) {
	tests := []struct {
		name        string
		participant domain.Participant
	}{
		{name: "Empty user", participant: domain.Participant{ConnectionID: "c1", RoomID: "lobby"}},
		{name: "Empty room", participant: domain.Participant{ConnectionID: "c1", UserID: "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl, f := newFixture(t)
			defer ctrl.Finish()
			sink := participantSink(ctrl, tt.participant)

			// Given the connection never joins but still leaves once closed
			f.registry.EXPECT().Join(gomock.Any(), gomock.Any()).Times(0)
			f.registry.EXPECT().Leave(tt.participant.RoomID, sink).Times(1)

			err := f.orchestrator.RegisterParticipant(context.Background(), sink)

			req.ErrorIs(err, errors.ErrInvalidIdentity)
			req.Equal(uint64(1), f.monitoring.GetLatest().Rejected)
		})
	}
}

func TestOrchestrator_Receive_Routes_And_Delivers(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()
	sink := participantSink(ctrl, bob)
	other := participantSink(ctrl, domain.Participant{ConnectionID: "c-alice", UserID: "alice", RoomID: "lobby"})
	frame := []byte(`{"type":"chat","message":"hi"}`)
	evt := event.Outbound{Kind: event.ChatMessage, Room: "lobby", Sender: "bob", Message: "hi"}
	audience := []contract.EventSink{sink, other}

	// Given a joined participant
	f.registry.EXPECT().Join(gomock.Any(), gomock.Any())
	req.NoError(f.orchestrator.RegisterParticipant(context.Background(), sink))

	// Given the frame is routed to the current room members
	f.router.EXPECT().Route(bob, frame).Return([]event.Outbound{evt}).Times(1)
	f.registry.EXPECT().Members(domain.RoomID("lobby")).Return(audience).Times(1)
	f.dispatcher.EXPECT().Deliver(gomock.Any(), evt, audience).Return(contract.Report{Delivered: 2}).Times(1)

	// When a frame is received
	f.orchestrator.Receive(context.Background(), sink, frame)

	// Then
	stats := f.monitoring.GetLatest()
	req.Equal(uint64(1), stats.FramesReceived)
	req.Equal(uint64(1), stats.EventsRouted)
	req.Equal(uint64(2), stats.Deliveries)
}

func TestOrchestrator_Receive_Ignored_Frame(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()
	sink := participantSink(ctrl, bob)

	f.registry.EXPECT().Join(gomock.Any(), gomock.Any())
	req.NoError(f.orchestrator.RegisterParticipant(context.Background(), sink))

	// Given a frame the router drops
	f.router.EXPECT().Route(gomock.Any(), gomock.Any()).Return(nil)
	f.dispatcher.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	f.orchestrator.Receive(context.Background(), sink, []byte(`{"type":"typing"}`))

	req.Equal(uint64(1), f.monitoring.GetLatest().FramesIgnored)
}

func TestOrchestrator_Receive_Before_Join_Is_Dropped(t *testing.T) {
	ctrl, f := newFixture(t)
	defer ctrl.Finish()
	sink := participantSink(ctrl, bob)

	// Given a connection never registered
	f.router.EXPECT().Route(gomock.Any(), gomock.Any()).Times(0)

	f.orchestrator.Receive(context.Background(), sink, []byte(`{"type":"chat","message":"hi"}`))
}

func TestOrchestrator_UnregisterParticipant_Leaves_Room(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()
	sink := participantSink(ctrl, bob)

	f.registry.EXPECT().Join(gomock.Any(), gomock.Any())
	req.NoError(f.orchestrator.RegisterParticipant(context.Background(), sink))

	// Given leave is called on every unregister, even a duplicate one
	f.registry.EXPECT().Leave(domain.RoomID("lobby"), sink).Times(2)
	sink.EXPECT().Close().Times(2)

	// When the connection goes away twice
	f.orchestrator.UnregisterParticipant(sink)
	f.orchestrator.UnregisterParticipant(sink)

	// Then it is counted once
	req.Equal(uint64(1), f.monitoring.GetLatest().Left)

	// And frames are not routed anymore
	f.router.EXPECT().Route(gomock.Any(), gomock.Any()).Times(0)
	f.orchestrator.Receive(context.Background(), sink, []byte(`{"type":"chat","message":"hi"}`))
}

func TestOrchestrator_Stop_Closes_Connections(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()
	sink := participantSink(ctrl, bob)

	f.registry.EXPECT().Join(gomock.Any(), gomock.Any())
	req.NoError(f.orchestrator.RegisterParticipant(context.Background(), sink))

	// Given every live sink is closed and the supervisor stopped
	sink.EXPECT().Close().Times(1)
	f.supervisor.EXPECT().Stop().Times(1)

	f.orchestrator.Stop()

	// Then newcomers are refused
	late := participantSink(ctrl, domain.Participant{ConnectionID: "c-late", UserID: "late", RoomID: "lobby"})
	f.registry.EXPECT().Join(gomock.Any(), late).Times(0)
	f.registry.EXPECT().Leave(domain.RoomID("lobby"), late).Times(1)
	req.ErrorIs(f.orchestrator.RegisterParticipant(context.Background(), late), errors.ErrConnectionClosed)
}

func TestOrchestrator_Start_Runs_Supervised_Workers(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()
	worker := mocks.NewMockWorker(ctrl)

	// Given the worker is handed to the supervisor which runs until canceled
	f.supervisor.EXPECT().Add(worker).Return(f.supervisor).Times(1)
	f.supervisor.EXPECT().Run(gomock.Any()).Do(func(ctx context.Context) { <-ctx.Done() }).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- f.orchestrator.Add(worker).Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("orchestrator should return once its context is canceled")
	}
}

func TestOrchestrator_WaitDrained(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()

	// Given one connection still open, then none
	gomock.InOrder(
		f.registry.EXPECT().Size().Return(1, 1).Times(2),
		f.registry.EXPECT().Size().Return(0, 0).Times(1),
	)

	// When waiting for the relay to drain
	err := f.orchestrator.WaitDrained(context.Background())

	// Then
	req.NoError(err)
}

func TestOrchestrator_WaitDrained_Times_Out(t *testing.T) {
	req := require.New(t)
	ctrl, f := newFixture(t)
	defer ctrl.Finish()

	// Given a connection that never leaves
	f.registry.EXPECT().Size().Return(1, 1).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.orchestrator.WaitDrained(ctx)

	req.ErrorIs(err, context.DeadlineExceeded)
}
