/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package plottwist

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrGameAlreadyStarted = errors.New("game already in progress")
	ErrNameTaken          = errors.New("that name is already taken")
	ErrRoomCodeExhausted  = errors.New("could not allocate a free room code")
	ErrGameNotCompleted   = errors.New("game has not finished yet")
	ErrForbidden          = errors.New("only the host can start the game")
	ErrInvalidName        = errors.New("names must be between 1 and 20 characters")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrGameNotInProgress  = errors.New("game is not in progress")
	ErrAlreadySubmitted   = errors.New("placements already submitted")
	ErrInvalidPlacement   = errors.New("placements must name players in the room and stay inside the board")

	ErrNotInSetup    = errors.New("players can only be changed during setup")
	ErrNoPlayers     = errors.New("add at least one player first")
	ErrPinsRemaining = errors.New("place a pin for every player first")
)

// TransportError is a failure of the underlying document store. Its message
// is the store's own.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
