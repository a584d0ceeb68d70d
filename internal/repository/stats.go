package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GuildStats aggregates listening history for a guild. "Last 24h" is
// relative to now.
func (r *Repo) GuildStats(ctx context.Context, guild string, now time.Time) (Stats, error) {
	var s Stats
	if err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(duration), 0),
	       COUNT(DISTINCT user_id),
	       COALESCE(SUM(CASE WHEN played_at >= ? THEN 1 ELSE 0 END), 0)
	FROM track_plays WHERE guild_id=?`,
		millis(now.Add(-24*time.Hour)), guild,
	).Scan(&s.TotalPlays, &s.TotalListeningMs, &s.UniqueListeners, &s.PlaysLast24h); err != nil {
		return s, err
	}

	if err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM (SELECT DISTINCT title, author FROM track_plays WHERE guild_id=?)`, guild,
	).Scan(&s.UniqueTracks); err != nil {
		return s, err
	}

	var top TopTrack
	err := r.db.QueryRowContext(ctx, `
	SELECT title, author, COUNT(*) AS c FROM track_plays WHERE guild_id=?
	GROUP BY title, author ORDER BY c DESC, MAX(played_at) DESC LIMIT 1`, guild,
	).Scan(&top.Title, &top.Author, &top.Count)
	switch {
	case err == nil:
		s.TopTrack = &top
	case !errors.Is(err, sql.ErrNoRows):
		return s, err
	}

	var req TopRequester
	err = r.db.QueryRowContext(ctx, `
	SELECT user_id, MAX(username), COUNT(*) AS c FROM track_plays WHERE guild_id=?
	GROUP BY user_id ORDER BY c DESC, MAX(played_at) DESC LIMIT 1`, guild,
	).Scan(&req.UserID, &req.Username, &req.Count)
	switch {
	case err == nil:
		s.TopRequester = &req
	case !errors.Is(err, sql.ErrNoRows):
		return s, err
	}

	var completed int
	var totalLen, totalTracks int64
	if err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN ended_at IS NOT NULL THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN ended_at IS NOT NULL THEN ended_at - started_at ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN ended_at IS NOT NULL THEN tracks_played ELSE 0 END), 0)
	FROM listening_sessions WHERE guild_id=?`, guild,
	).Scan(&s.SessionCount, &completed, &totalLen, &totalTracks); err != nil {
		return s, err
	}
	if completed > 0 {
		s.AvgSessionLength = time.Duration(totalLen/int64(completed)) * time.Millisecond
		s.AvgTracksPerSession = int((totalTracks + int64(completed)/2) / int64(completed))
	}
	return s, nil
}
