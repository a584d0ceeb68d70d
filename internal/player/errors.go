package player

import "errors"

var (
	ErrNoActivePlayer     = errors.New("no active player")
	ErrNothingPlaying     = errors.New("nothing is playing")
	ErrOutOfBounds        = errors.New("position is outside the range of the queue")
	ErrOutOfRange         = errors.New("value out of range")
	ErrNotPermitted       = errors.New("not permitted")
	ErrEmptyQueue         = errors.New("queue is empty")
	ErrInsufficientTracks = errors.New("not enough tracks in the queue")
	ErrEmptyHistory       = errors.New("no previous track")
	ErrInvalidRepeatMode  = errors.New("invalid repeat mode")
	ErrQueueFull          = errors.New("queue is full")
	ErrDestroyed          = errors.New("player has been destroyed")
)
