package session

import "errors"

// Store operations fail with one of these sentinels; callers translate them
// with errors.Is.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotAdmin            = errors.New("participant is not the room admin")
	ErrAdminTaken          = errors.New("room already has an admin")
	ErrVotesRevealed       = errors.New("votes already revealed")
)
