package runtime

import (
	"chat-signal/contract"
	"chat-signal/domain"
	"chat-signal/domain/event"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	participant domain.Participant
}

func newFakeSink(roomID domain.RoomID, userID domain.UserID) *fakeSink {
	return &fakeSink{participant: domain.Participant{
		ConnectionID: domain.ConnectionID(uuid.NewString()),
		UserID:       userID,
		RoomID:       roomID,
	}}
}

func (s *fakeSink) Participant() domain.Participant                   { return s.participant }
func (s *fakeSink) Consume(ctx context.Context, d event.Delivery) error { return nil }
func (s *fakeSink) Close()                                             {}

func TestRegistry_Join_One_Room_One_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("lobby")
	sink := newFakeSink(roomID, "alice")

	// Given no room exists
	req.Empty(registry.roomMembers)

	// When a participant joins a room
	registry.Join(roomID, sink)

	// Then the room exists with one member
	req.Len(registry.roomMembers, 1)
	req.Contains(registry.roomMembers[roomID], sink.participant.ConnectionID)

	req.Len(registry.Members(roomID), 1)
	req.Contains(registry.Members(roomID), contract.EventSink(sink))
}

func TestRegistry_Join_One_Room_Multiple_Participants(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("lobby")
	sink1 := newFakeSink(roomID, "alice")
	sink2 := newFakeSink(roomID, "bob")

	// When participants join a room
	registry.Join(roomID, sink1)
	registry.Join(roomID, sink2)

	// Then
	req.Len(registry.roomMembers[roomID], 2)
	req.ElementsMatch([]contract.EventSink{sink1, sink2}, registry.Members(roomID))

	rooms, connections := registry.Size()
	req.Equal(1, rooms)
	req.Equal(2, connections)
}

func TestRegistry_Same_User_Twice_Counts_As_Two_Members(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("lobby")

	// Given the same user opens two tabs
	registry.Join(roomID, newFakeSink(roomID, "alice"))
	registry.Join(roomID, newFakeSink(roomID, "alice"))

	// Then both connections are members
	req.Len(registry.Members(roomID), 2)
}

func TestRegistry_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	lobby := newFakeSink("lobby", "alice")
	kitchen := newFakeSink("kitchen", "bob")

	registry.Join("lobby", lobby)
	registry.Join("kitchen", kitchen)

	req.Equal([]contract.EventSink{lobby}, registry.Members("lobby"))
	req.Equal([]contract.EventSink{kitchen}, registry.Members("kitchen"))
	req.Nil(registry.Members("attic"))
}

func TestRegistry_Leave_One_Room_One_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("lobby")
	sink := newFakeSink(roomID, "alice")

	// Given a participant joined a room
	registry.Join(roomID, sink)

	// When the participant leaves the room
	registry.Leave(roomID, sink)

	// Then the room doesn't exist anymore
	req.Empty(registry.roomMembers)
	req.Nil(registry.Members(roomID))
}

func TestRegistry_Leave_One_Room_Multiple_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("lobby")
	sink1 := newFakeSink(roomID, "alice")
	sink2 := newFakeSink(roomID, "bob")

	registry.Join(roomID, sink1)
	registry.Join(roomID, sink2)

	// When a participant leaves the room
	registry.Leave(roomID, sink1)

	// Then only one participant left
	req.Len(registry.roomMembers[roomID], 1)
	req.Equal([]contract.EventSink{sink2}, registry.Members(roomID))
}

func TestRegistry_Leave_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("lobby")
	sink1 := newFakeSink(roomID, "alice")
	sink2 := newFakeSink(roomID, "bob")

	registry.Join(roomID, sink1)
	registry.Join(roomID, sink2)

	// When the same participant leaves twice
	registry.Leave(roomID, sink1)
	registry.Leave(roomID, sink1)

	// And someone leaves a room that never existed
	registry.Leave("attic", sink2)

	// Then nothing else changed
	req.Equal([]contract.EventSink{sink2}, registry.Members(roomID))
}

func TestRegistry_Members_Is_A_Snapshot(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("lobby")
	sink1 := newFakeSink(roomID, "alice")
	registry.Join(roomID, sink1)

	// Given a snapshot taken before a second join
	snapshot := registry.Members(roomID)
	registry.Join(roomID, newFakeSink(roomID, "bob"))

	// Then the snapshot is unchanged
	req.Equal([]contract.EventSink{sink1}, snapshot)
	req.Len(registry.Members(roomID), 2)
}

func TestRegistry_Concurrent_Join_And_Leave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roomID := domain.RoomID(fmt.Sprintf("room-%d", i%5))
			sink := newFakeSink(roomID, domain.UserID(fmt.Sprintf("user-%d", i)))
			registry.Join(roomID, sink)
			_ = registry.Members(roomID)
			registry.Leave(roomID, sink)
		}(i)
	}
	wg.Wait()

	// Then every room was dropped once empty
	rooms, connections := registry.Size()
	req.Zero(rooms)
	req.Zero(connections)
}
