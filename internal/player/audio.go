package player

import "github.com/sonroyaalmerol/beatbox/internal/state"

// Audio is the control surface of the external audio node. Implementations
// must not block: sessions call it while holding their lock.
type Audio interface {
	Play(guildID string, t state.Track, startMs int64, volume int) error
	Pause(guildID string) error
	Resume(guildID string) error
	Stop(guildID string) error
	Seek(guildID string, positionMs int64) error
	Volume(guildID string, volume int) error
	Disconnect(guildID string) error
}

// Broadcaster fans a guild's state out to its subscribers. Calls happen
// under the session lock and must not block.
type Broadcaster interface {
	BroadcastState(ps state.PlayerState)
	BroadcastQueue(ps state.PlayerState)
	BroadcastError(guildID, message string, t *state.Track)
}

// Hooks are invoked after the session lock is released.
type Hooks struct {
	TrackStarted func(guildID string, t state.Track)
	Destroyed    func(guildID string, final state.PlayerState, reason string)
}

type nopAudio struct{}

func (nopAudio) Play(string, state.Track, int64, int) error { return nil }
func (nopAudio) Pause(string) error                         { return nil }
func (nopAudio) Resume(string) error                        { return nil }
func (nopAudio) Stop(string) error                          { return nil }
func (nopAudio) Seek(string, int64) error                   { return nil }
func (nopAudio) Volume(string, int) error                   { return nil }
func (nopAudio) Disconnect(string) error                    { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastState(state.PlayerState)             {}
func (nopBroadcaster) BroadcastQueue(state.PlayerState)             {}
func (nopBroadcaster) BroadcastError(string, string, *state.Track) {}
