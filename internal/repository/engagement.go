package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

func (r *Repo) getEngagement(ctx context.Context, user string) (Engagement, error) {
	e := Engagement{UserID: user}
	var promo int
	var sentAt sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
	SELECT interaction_count, total_voice_time, promo_sent, promo_sent_at
	FROM user_engagement WHERE user_id=?`, user,
	).Scan(&e.InteractionCount, &e.TotalVoiceTime, &promo, &sentAt)
	if err != nil {
		return e, err
	}
	e.PromoSent = promo != 0
	if sentAt.Valid {
		e.PromoSentAt = fromMillis(sentAt.Int64)
	}
	return e, nil
}

func (r *Repo) IncrementInteractions(ctx context.Context, user string) (Engagement, error) {
	if _, err := r.db.ExecContext(ctx, `
	INSERT INTO user_engagement(user_id, interaction_count) VALUES (?, 1)
	ON CONFLICT(user_id) DO UPDATE SET interaction_count = interaction_count + 1`, user,
	); err != nil {
		return Engagement{}, err
	}
	return r.getEngagement(ctx, user)
}

func (r *Repo) AddVoiceTime(ctx context.Context, user string, seconds int64) (Engagement, error) {
	if _, err := r.db.ExecContext(ctx, `
	INSERT INTO user_engagement(user_id, total_voice_time) VALUES (?, ?)
	ON CONFLICT(user_id) DO UPDATE SET total_voice_time = total_voice_time + excluded.total_voice_time`,
		user, seconds,
	); err != nil {
		return Engagement{}, err
	}
	return r.getEngagement(ctx, user)
}

// MarkPromoSent flags the promo as sent. It reports false when another call
// already did.
func (r *Repo) MarkPromoSent(ctx context.Context, user string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_engagement SET promo_sent=1, promo_sent_at=? WHERE user_id=? AND promo_sent=0`,
		millis(at), user,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repo) RecordPlay(ctx context.Context, guild string, t state.Track, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO track_plays(guild_id, user_id, username, title, author, uri, duration, played_at)
	VALUES (?,?,?,?,?,?,?,?)`,
		guild, t.Requester.ID, t.Requester.Username, t.Title, t.Author, t.URI, t.Duration, millis(at),
	)
	return err
}

func (r *Repo) StartListeningSession(ctx context.Context, guild string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO listening_sessions(guild_id, started_at) VALUES (?,?)`, guild, millis(at),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) IncrementSessionTracks(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE listening_sessions SET tracks_played = tracks_played + 1 WHERE id=?`, id,
	)
	return err
}

func (r *Repo) EndListeningSession(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE listening_sessions SET ended_at=? WHERE id=? AND ended_at IS NULL`, millis(at), id,
	)
	return err
}
