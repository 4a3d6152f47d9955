package domain

// RoomID is the room name taken from the connection route. Rooms only exist
// while they have members.
type RoomID string

// UserID is the identity a client connects with. It is trusted as given by the
// route once admitted.
type UserID string

// ConnectionID is unique per transport connection, a single user may own several.
type ConnectionID string
