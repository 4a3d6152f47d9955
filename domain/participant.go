// Package domain contains core concepts of the signaling system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"chat-signal/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Participant is the identity of one connection: who it is and which room it
// belongs to. The room is a lookup key, never an owning reference.
type Participant struct {
	ConnectionID ConnectionID `validate:"required"`
	UserID       UserID       `validate:"required"`
	RoomID       RoomID       `validate:"required"`
}

// Validate rejects a participant that cannot be admitted into a room.
func (p Participant) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidIdentity, err)
	}
	return nil
}
