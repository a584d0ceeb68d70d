package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

// MaxSavedQueueTracks bounds a saved queue, the playing track included.
const MaxSavedQueueTracks = 200

var (
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrQueueTooLarge = errors.New("queue too large")
	ErrOutOfRange    = errors.New("position out of range")
)

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

type GuildSettings struct {
	GuildID         string
	DJRoleID        string
	TwentyFourSeven bool
	DefaultRepeat   state.RepeatMode
	DefaultVolume   int
}

// StoredTrack is a persisted track. Requester data is not kept; tracks are
// re-resolved from URI when loaded.
type StoredTrack struct {
	Position   int
	Title      string
	Author     string
	Duration   int64
	URI        string
	ArtworkURL string
	SourceName string
	WasPlaying bool
}

func (t StoredTrack) Track(req state.Requester) state.Track {
	return state.Track{
		Title:      t.Title,
		Author:     t.Author,
		Duration:   t.Duration,
		URI:        t.URI,
		ArtworkURL: t.ArtworkURL,
		SourceName: t.SourceName,
		Requester:  req,
	}
}

func storedFrom(t state.Track, pos int) StoredTrack {
	return StoredTrack{
		Position:   pos,
		Title:      t.Title,
		Author:     t.Author,
		Duration:   t.Duration,
		URI:        t.URI,
		ArtworkURL: t.ArtworkURL,
		SourceName: t.SourceName,
	}
}

type SavedQueue struct {
	ID        int64
	GuildID   string
	UserID    string
	Name      string
	CreatedAt time.Time
	Tracks    []StoredTrack
}

type QueueSummary struct {
	Name          string
	TrackCount    int
	TotalDuration int64
	CreatedAt     time.Time
}

type Playlist struct {
	ID        int64
	UserID    string
	Name      string
	CreatedAt time.Time
	Tracks    []StoredTrack
}

type PlaylistSummary struct {
	Name       string
	TrackCount int
	CreatedAt  time.Time
}

type Engagement struct {
	UserID           string
	InteractionCount int
	TotalVoiceTime   int64 // seconds
	PromoSent        bool
	PromoSentAt      time.Time
}

type TopTrack struct {
	Title  string
	Author string
	Count  int
}

type TopRequester struct {
	UserID   string
	Username string
	Count    int
}

type Stats struct {
	TotalPlays          int
	TotalListeningMs    int64
	TopTrack            *TopTrack
	TopRequester        *TopRequester
	SessionCount        int
	AvgSessionLength    time.Duration
	AvgTracksPerSession int
	PlaysLast24h        int
	UniqueTracks        int
	UniqueListeners     int
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }
