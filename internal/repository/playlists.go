package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (r *Repo) CreatePlaylist(ctx context.Context, user, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO playlists(user_id, name, created_at) VALUES (?,?,?)`,
		user, strings.TrimSpace(name), millis(r.now()),
	)
	if isUniqueViolation(err) {
		return ErrExists
	}
	return err
}

func (r *Repo) DeletePlaylist(ctx context.Context, user, name string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM playlists WHERE user_id=? AND name=?`, user, strings.TrimSpace(name),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) ListPlaylists(ctx context.Context, user string) ([]PlaylistSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT p.name, p.created_at, COUNT(t.position)
	FROM playlists p LEFT JOIN playlist_tracks t ON t.playlist_id = p.id
	WHERE p.user_id=?
	GROUP BY p.id ORDER BY p.name`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlaylistSummary
	for rows.Next() {
		var s PlaylistSummary
		var created int64
		if err := rows.Scan(&s.Name, &created, &s.TrackCount); err != nil {
			return nil, err
		}
		s.CreatedAt = fromMillis(created)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) playlistID(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, user, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM playlists WHERE user_id=? AND name=?`, user, strings.TrimSpace(name),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r *Repo) GetPlaylist(ctx context.Context, user, name string) (*Playlist, error) {
	p := Playlist{UserID: user}
	var created int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM playlists WHERE user_id=? AND name=?`, user, strings.TrimSpace(name),
	).Scan(&p.ID, &p.Name, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = fromMillis(created)
	rows, err := r.db.QueryContext(ctx, `
	SELECT position, title, author, duration, uri, artwork_url, source_name
	FROM playlist_tracks WHERE playlist_id=? ORDER BY position`, p.ID)
	if err != nil {
		return nil, err
	}
	p.Tracks, err = scanTracks(rows, false)
	return &p, err
}

// AddPlaylistTrack appends t and returns the new track count.
func (r *Repo) AddPlaylistTrack(ctx context.Context, user, name string, t state.Track) (int, error) {
	var count int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := r.playlistID(ctx, tx, user, name)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id=?`, id,
		).Scan(&count); err != nil {
			return err
		}
		if err := insertTracks(ctx, tx, "playlist_tracks", "playlist_id", id, []StoredTrack{storedFrom(t, count)}); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// RemovePlaylistTrack removes the track at the zero-based position and
// closes the gap.
func (r *Repo) RemovePlaylistTrack(ctx context.Context, user, name string, position int) (StoredTrack, error) {
	var removed StoredTrack
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := r.playlistID(ctx, tx, user, name)
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx, `
		SELECT position, title, author, duration, uri, artwork_url, source_name
		FROM playlist_tracks WHERE playlist_id=? AND position=?`, id, position,
		).Scan(&removed.Position, &removed.Title, &removed.Author, &removed.Duration, &removed.URI, &removed.ArtworkURL, &removed.SourceName)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOutOfRange
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM playlist_tracks WHERE playlist_id=? AND position=?`, id, position,
		); err != nil {
			return err
		}
		// shift one row at a time in ascending order so the primary key
		// never collides
		rows, err := tx.QueryContext(ctx,
			`SELECT position FROM playlist_tracks WHERE playlist_id=? AND position>? ORDER BY position`, id, position)
		if err != nil {
			return err
		}
		var later []int
		for rows.Next() {
			var p int
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			later = append(later, p)
		}
		rows.Close()
		for _, p := range later {
			if _, err := tx.ExecContext(ctx,
				`UPDATE playlist_tracks SET position=? WHERE playlist_id=? AND position=?`, p-1, id, p,
			); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}
