package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

func (r *Repo) DB() *sql.DB { return r.db }

// GetGuildSettings returns the stored settings, or defaults when the guild
// has none.
func (r *Repo) GetGuildSettings(ctx context.Context, guild string) (GuildSettings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT dj_role_id, twenty_four_seven, default_repeat_mode, default_volume
	FROM guild_settings WHERE guild_id = ?`, guild)

	s := GuildSettings{GuildID: guild, DefaultRepeat: state.RepeatOff, DefaultVolume: state.DefaultVolume}
	var tfs int
	var mode string
	if err := row.Scan(&s.DJRoleID, &tfs, &mode, &s.DefaultVolume); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, nil
		}
		return s, err
	}
	s.TwentyFourSeven = tfs != 0
	if m, err := state.ParseRepeatMode(mode); err == nil {
		s.DefaultRepeat = m
	}
	return s, nil
}

func (r *Repo) UpdateGuildSettings(ctx context.Context, s GuildSettings) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO guild_settings(guild_id, dj_role_id, twenty_four_seven, default_repeat_mode, default_volume, updated_at)
	VALUES (?,?,?,?,?,?)
	ON CONFLICT(guild_id) DO UPDATE SET
	  dj_role_id=excluded.dj_role_id,
	  twenty_four_seven=excluded.twenty_four_seven,
	  default_repeat_mode=excluded.default_repeat_mode,
	  default_volume=excluded.default_volume,
	  updated_at=excluded.updated_at`,
		s.GuildID, s.DJRoleID, boolToInt(s.TwentyFourSeven), string(s.DefaultRepeat), s.DefaultVolume, millis(r.now()),
	)
	return err
}

func (r *Repo) SetDJRole(ctx context.Context, guild, roleID string) error {
	s, err := r.GetGuildSettings(ctx, guild)
	if err != nil {
		return err
	}
	s.DJRoleID = roleID
	return r.UpdateGuildSettings(ctx, s)
}

func (r *Repo) SetTwentyFourSeven(ctx context.Context, guild string, on bool) error {
	s, err := r.GetGuildSettings(ctx, guild)
	if err != nil {
		return err
	}
	s.TwentyFourSeven = on
	return r.UpdateGuildSettings(ctx, s)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTracks(ctx context.Context, ex execer, table, owner string, ownerID any, tracks []StoredTrack) error {
	q := fmt.Sprintf(`INSERT INTO %s(%s, position, title, author, duration, uri, artwork_url, source_name) VALUES (?,?,?,?,?,?,?,?)`, table, owner)
	for _, t := range tracks {
		if _, err := ex.ExecContext(ctx, q, ownerID, t.Position, t.Title, t.Author, t.Duration, t.URI, t.ArtworkURL, t.SourceName); err != nil {
			return err
		}
	}
	return nil
}

func scanTracks(rows *sql.Rows, withPlaying bool) ([]StoredTrack, error) {
	defer rows.Close()
	var out []StoredTrack
	for rows.Next() {
		var t StoredTrack
		dest := []any{&t.Position, &t.Title, &t.Author, &t.Duration, &t.URI, &t.ArtworkURL, &t.SourceName}
		var playing int
		if withPlaying {
			dest = append(dest, &playing)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		t.WasPlaying = playing != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveQueue stores tracks under name for the user in the guild, replacing
// any queue of the same name.
func (r *Repo) SaveQueue(ctx context.Context, guild, user, name string, tracks []state.Track) error {
	name = strings.TrimSpace(name)
	if len(tracks) > MaxSavedQueueTracks {
		return fmt.Errorf("%w: %d tracks, max %d", ErrQueueTooLarge, len(tracks), MaxSavedQueueTracks)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM saved_queues WHERE guild_id=? AND user_id=? AND name=?`, guild, user, name,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO saved_queues(guild_id, user_id, name, created_at) VALUES (?,?,?,?)`,
			guild, user, name, millis(r.now()),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		stored := make([]StoredTrack, len(tracks))
		for i, t := range tracks {
			stored[i] = storedFrom(t, i)
		}
		return insertTracks(ctx, tx, "saved_queue_tracks", "queue_id", id, stored)
	})
}

func (r *Repo) LoadQueue(ctx context.Context, guild, user, name string) (*SavedQueue, error) {
	q := SavedQueue{GuildID: guild, UserID: user}
	var created int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM saved_queues WHERE guild_id=? AND user_id=? AND name=?`,
		guild, user, strings.TrimSpace(name),
	).Scan(&q.ID, &q.Name, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	q.CreatedAt = fromMillis(created)
	rows, err := r.db.QueryContext(ctx, `
	SELECT position, title, author, duration, uri, artwork_url, source_name
	FROM saved_queue_tracks WHERE queue_id=? ORDER BY position`, q.ID)
	if err != nil {
		return nil, err
	}
	q.Tracks, err = scanTracks(rows, false)
	return &q, err
}

func (r *Repo) ListSavedQueues(ctx context.Context, guild, user string) ([]QueueSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT q.name, q.created_at, COUNT(t.position), COALESCE(SUM(t.duration), 0)
	FROM saved_queues q LEFT JOIN saved_queue_tracks t ON t.queue_id = q.id
	WHERE q.guild_id=? AND q.user_id=?
	GROUP BY q.id ORDER BY q.created_at DESC, q.id DESC`, guild, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueueSummary
	for rows.Next() {
		var s QueueSummary
		var created int64
		if err := rows.Scan(&s.Name, &created, &s.TrackCount, &s.TotalDuration); err != nil {
			return nil, err
		}
		s.CreatedAt = fromMillis(created)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteSavedQueue(ctx context.Context, guild, user, name string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM saved_queues WHERE guild_id=? AND user_id=? AND name=?`, guild, user, strings.TrimSpace(name),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveLastQueue overwrites the guild's last queue snapshot. current may be
// nil; when set it is stored first and flagged as playing.
func (r *Repo) SaveLastQueue(ctx context.Context, guild string, current *state.Track, upcoming []state.Track) error {
	tracks := make([]StoredTrack, 0, len(upcoming)+1)
	if current != nil {
		st := storedFrom(*current, 0)
		st.WasPlaying = true
		tracks = append(tracks, st)
	}
	for _, t := range upcoming {
		tracks = append(tracks, storedFrom(t, len(tracks)))
	}
	if len(tracks) > MaxSavedQueueTracks {
		tracks = tracks[:MaxSavedQueueTracks]
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM last_queues WHERE guild_id=?`, guild); err != nil {
			return err
		}
		if len(tracks) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO last_queues(guild_id, saved_at) VALUES (?,?)`, guild, millis(r.now()),
		); err != nil {
			return err
		}
		for _, t := range tracks {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO last_queue_tracks(guild_id, position, title, author, duration, uri, artwork_url, source_name, was_playing)
			VALUES (?,?,?,?,?,?,?,?,?)`,
				guild, t.Position, t.Title, t.Author, t.Duration, t.URI, t.ArtworkURL, t.SourceName, boolToInt(t.WasPlaying),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) LastQueue(ctx context.Context, guild string) ([]StoredTrack, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT position, title, author, duration, uri, artwork_url, source_name, was_playing
	FROM last_queue_tracks WHERE guild_id=? ORDER BY position`, guild)
	if err != nil {
		return nil, err
	}
	tracks, err := scanTracks(rows, true)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ErrNotFound
	}
	return tracks, nil
}
