package runtime

import (
	"chat-signal/contract"
	"chat-signal/domain"
	"chat-signal/domain/event"
	"chat-signal/errors"
	"chat-signal/mocks"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func mockSink(ctrl *gomock.Controller, userID domain.UserID) *mocks.MockEventSink {
	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Participant().Return(domain.Participant{
		ConnectionID: domain.ConnectionID("c-" + userID),
		UserID:       userID,
		RoomID:       "lobby",
	}).AnyTimes()
	return sink
}

func TestDispatcher_Chat_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	aliceSink := mockSink(ctrl, "alice")
	bobSink := mockSink(ctrl, "bob")
	expected := event.ChatDelivery{Message: "hi"}

	// Given every member consumes the chat, sender included
	aliceSink.EXPECT().Consume(gomock.Any(), expected).Return(nil).Times(1)
	bobSink.EXPECT().Consume(gomock.Any(), expected).Return(nil).Times(1)

	evt := event.Outbound{Kind: event.ChatMessage, Room: "lobby", Sender: "alice", Message: "hi"}

	// When the event is delivered
	report := NewDispatcher(log, time.Second).Deliver(context.Background(), evt,
		[]contract.EventSink{aliceSink, bobSink})

	// Then
	req.Equal(contract.Report{Delivered: 2}, report)
}

func TestDispatcher_Offer_Skips_Sender(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	aliceSink := mockSink(ctrl, "alice")
	bobSink := mockSink(ctrl, "bob")
	claraSink := mockSink(ctrl, "clara")

	aliceSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)
	bobSink.EXPECT().Consume(gomock.Any(), event.OfferDelivery{SDP: sdp, Sender: "alice", Receiver: "bob"}).Return(nil)
	claraSink.EXPECT().Consume(gomock.Any(), event.OfferDelivery{SDP: sdp, Sender: "alice", Receiver: "clara"}).Return(nil)

	evt := event.Outbound{Kind: event.SDPOffer, Room: "lobby", Sender: "alice", SDP: sdp}
	report := NewDispatcher(log, time.Second).Deliver(context.Background(), evt,
		[]contract.EventSink{aliceSink, bobSink, claraSink})

	req.Equal(contract.Report{Delivered: 2, Filtered: 1}, report)
}

func TestDispatcher_Answer_Only_To_Receiver(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sdp := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	aliceSink := mockSink(ctrl, "alice")
	bobSink := mockSink(ctrl, "bob")
	claraSink := mockSink(ctrl, "clara")

	aliceSink.EXPECT().Consume(gomock.Any(), event.AnswerDelivery{SDP: sdp, Sender: "bob"}).Return(nil).Times(1)
	bobSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)
	claraSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)

	evt := event.Outbound{Kind: event.SDPAnswer, Room: "lobby", Sender: "bob", Receiver: "alice", SDP: sdp}
	report := NewDispatcher(log, time.Second).Deliver(context.Background(), evt,
		[]contract.EventSink{aliceSink, bobSink, claraSink})

	req.Equal(contract.Report{Delivered: 1, Filtered: 2}, report)
}

func TestDispatcher_Answer_To_Absent_Receiver_Is_Dropped(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bobSink := mockSink(ctrl, "bob")
	bobSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)

	evt := event.Outbound{Kind: event.SDPAnswer, Room: "lobby", Sender: "bob", Receiver: "ghost",
		SDP: json.RawMessage(`{"type":"answer"}`)}
	report := NewDispatcher(log, time.Second).Deliver(context.Background(), evt,
		[]contract.EventSink{bobSink})

	req.Equal(contract.Report{Filtered: 1}, report)
}

func TestDispatcher_Failures_Are_Isolated(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	closedSink := mockSink(ctrl, "alice")
	panickingSink := mockSink(ctrl, "bob")
	slowSink := mockSink(ctrl, "clara")
	healthySink := mockSink(ctrl, "dave")

	// Given a closed sink, a panicking sink and a sink slower than the delivery timeout
	closedSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrConnectionClosed)
	panickingSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, d event.Delivery) error {
			panic("boom")
		})
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, d event.Delivery) error {
			<-ctx.Done()     // Waiting for timeout to trigger cancellation
			return ctx.Err() // Sending back "context deadline exceeded"
		})
	healthySink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	evt := event.Outbound{Kind: event.ChatMessage, Room: "lobby", Sender: "dave", Message: "hi"}

	// When the event is delivered
	report := NewDispatcher(log, 20*time.Millisecond).Deliver(context.Background(), evt,
		[]contract.EventSink{closedSink, panickingSink, slowSink, healthySink})

	// Then the healthy member still receives
	req.Equal(contract.Report{Delivered: 1, Failed: 3}, report)
}

func TestDispatcher_Empty_Audience(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	evt := event.Outbound{Kind: event.ChatMessage, Room: "lobby", Sender: "alice", Message: "hi"}

	report := NewDispatcher(log, time.Second).Deliver(context.Background(), evt, nil)

	require.Equal(t, contract.Report{}, report)
}
