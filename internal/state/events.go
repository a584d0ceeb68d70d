package state

import "encoding/json"

// Client to server.
const (
	EventJoinGuild      = "guild:join"
	EventLeaveGuild     = "guild:leave"
	EventPlayerPause    = "player:pause"
	EventPlayerResume   = "player:resume"
	EventPlayerSkip     = "player:skip"
	EventPlayerPrevious = "player:previous"
	EventPlayerStop     = "player:stop"
	EventPlayerSeek     = "player:seek"
	EventPlayerVolume   = "player:volume"
	EventPlayerRepeat   = "player:repeat"
	EventPlayerShuffle  = "player:shuffle"
	EventQueueAdd       = "queue:add"
	EventQueueRemove    = "queue:remove"
	EventQueueMove      = "queue:move"
	EventQueueClear     = "queue:clear"
	EventSearch         = "search:query"
)

// Server to client.
const (
	EventPlayerState   = "player:state"
	EventPlayerError   = "player:error"
	EventSearchResults = "search:results"
	EventQueueUpdate   = "queue:update"
	EventVoiceUpdate   = "voice:update"
)

// Message is the envelope written on the socket.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RawMessage is the envelope as read off the socket, before the payload is
// decoded for its event.
type RawMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type GuildPayload struct {
	GuildID string `json:"guildId"`
}

type SeekPayload struct {
	GuildID  string `json:"guildId"`
	Position int64  `json:"position"`
}

type VolumePayload struct {
	GuildID string `json:"guildId"`
	Volume  int    `json:"volume"`
}

type RepeatPayload struct {
	GuildID string     `json:"guildId"`
	Mode    RepeatMode `json:"mode"`
}

type QueueAddPayload struct {
	GuildID string `json:"guildId"`
	Query   string `json:"query"`
}

type QueueRemovePayload struct {
	GuildID  string `json:"guildId"`
	Position int    `json:"position"`
}

type QueueMovePayload struct {
	GuildID string `json:"guildId"`
	From    int    `json:"from"`
	To      int    `json:"to"`
}

type SearchPayload struct {
	GuildID string `json:"guildId"`
	Query   string `json:"query"`
}

type SearchResult struct {
	Tracks []Track `json:"tracks"`
	Source string  `json:"source"`
}

type PlayerErrorPayload struct {
	GuildID string `json:"guildId"`
	Message string `json:"message"`
	Track   *Track `json:"track,omitempty"`
}

type VoiceUpdatePayload struct {
	GuildID   string `json:"guildId"`
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId,omitempty"`
}
