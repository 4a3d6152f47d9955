//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-signal/domain"
	"chat-signal/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one connection.
// Consume must not block longer than ctx allows.
type EventSink interface {
	Participant() domain.Participant
	Consume(ctx context.Context, d event.Delivery) error
	Close()
}

type IRegistry interface {
	Join(roomID domain.RoomID, sink EventSink)
	Leave(roomID domain.RoomID, sink EventSink)
	Members(roomID domain.RoomID) []EventSink
	Size() (rooms, connections int)
}

type IRouter interface {
	Route(sender domain.Participant, frame []byte) []event.Outbound
}

type IDispatcher interface {
	Deliver(ctx context.Context, evt event.Outbound, audience []EventSink) Report
}

// Report summarizes one delivery round.
type Report struct {
	Delivered int
	Filtered  int
	Failed    int
}

type Censor interface {
	Censor(content string) (string, []string)
}

type IOrchestrator interface {
	RegisterParticipant(ctx context.Context, sink EventSink) error
	Receive(ctx context.Context, sink EventSink, frame []byte)
	UnregisterParticipant(sink EventSink)
	Start(ctx context.Context) error
	Stop()
}
