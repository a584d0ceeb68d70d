// Package state holds the player state shapes shared by the bot process and
// dashboard clients, plus the socket message catalogue that carries them.
package state

import (
	"fmt"
	"slices"
	"time"
)

const (
	DefaultVolume = 80
	MaxVolume     = 100
	MaxQueueSize  = 500
	SearchLimit   = 10
)

type RepeatMode string

const (
	RepeatOff   RepeatMode = "off"
	RepeatTrack RepeatMode = "track"
	RepeatQueue RepeatMode = "queue"
)

func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(s) {
	case RepeatOff, RepeatTrack, RepeatQueue:
		return RepeatMode(s), nil
	}
	return "", fmt.Errorf("invalid repeat mode %q", s)
}

// Next cycles off -> track -> queue -> off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatTrack
	case RepeatTrack:
		return RepeatQueue
	default:
		return RepeatOff
	}
}

type Requester struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type Track struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Duration   int64     `json:"duration"` // ms
	URI        string    `json:"uri"`
	ArtworkURL string    `json:"artworkUrl,omitempty"`
	SourceName string    `json:"sourceName"`
	Requester  Requester `json:"requester"`
}

type QueueTrack struct {
	Track
	AddedAt  time.Time `json:"addedAt"`
	Position int       `json:"position"`
}

type PlayerState struct {
	GuildID      string       `json:"guildId"`
	Playing      bool         `json:"playing"`
	Paused       bool         `json:"paused"`
	CurrentTrack *Track       `json:"currentTrack"`
	Position     int64        `json:"position"`
	Volume       int          `json:"volume"`
	RepeatMode   RepeatMode   `json:"repeatMode"`
	Queue        []QueueTrack `json:"queue"`
	Seq          uint64       `json:"seq,omitempty"`
}

func Idle(guildID string) PlayerState {
	return PlayerState{
		GuildID:    guildID,
		Volume:     DefaultVolume,
		RepeatMode: RepeatOff,
		Queue:      []QueueTrack{},
	}
}

// Clone returns a copy that shares nothing mutable with ps.
func (ps PlayerState) Clone() PlayerState {
	out := ps
	if ps.CurrentTrack != nil {
		t := *ps.CurrentTrack
		out.CurrentTrack = &t
	}
	out.Queue = slices.Clone(ps.Queue)
	if out.Queue == nil {
		out.Queue = []QueueTrack{}
	}
	return out
}

func (ps PlayerState) Active() bool { return ps.CurrentTrack != nil }

// Reindex rewrites every Position to match its slice index.
func Reindex(q []QueueTrack) {
	for i := range q {
		q[i].Position = i
	}
}

func Enqueued(t Track, at time.Time) QueueTrack {
	return QueueTrack{Track: t, AddedAt: at}
}

// Advance applies the repeat-aware skip transition to ps. With requeue set,
// queue repeat appends the finished track to the tail before dequeuing the
// head, so a single looping track replays itself.
func Advance(ps PlayerState, requeue bool, now time.Time) PlayerState {
	out := ps.Clone()
	if out.CurrentTrack == nil {
		return out
	}
	switch out.RepeatMode {
	case RepeatTrack:
		out.Position = 0
		out.Playing = true
		out.Paused = false
		return out
	case RepeatQueue:
		if requeue {
			out.Queue = append(out.Queue, Enqueued(*out.CurrentTrack, now))
		}
	}
	if len(out.Queue) == 0 {
		return toIdle(out)
	}
	head := out.Queue[0].Track
	out.Queue = out.Queue[1:]
	Reindex(out.Queue)
	out.CurrentTrack = &head
	out.Position = 0
	out.Playing = true
	out.Paused = false
	return out
}

func toIdle(ps PlayerState) PlayerState {
	ps.CurrentTrack = nil
	ps.Position = 0
	ps.Playing = false
	ps.Paused = false
	Reindex(ps.Queue)
	return ps
}

// Stopped is the state broadcast after a player is torn down.
func Stopped(ps PlayerState) PlayerState {
	out := Idle(ps.GuildID)
	out.Volume = ps.Volume
	out.RepeatMode = ps.RepeatMode
	return out
}
