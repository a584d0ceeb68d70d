package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonroyaalmerol/beatbox/internal/mirror"
	"github.com/sonroyaalmerol/beatbox/internal/player"
	"github.com/sonroyaalmerol/beatbox/internal/resolver"
	"github.com/sonroyaalmerol/beatbox/internal/state"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, query string, req state.Requester) (resolver.Result, error) {
	if query == "missing" {
		return resolver.Result{}, resolver.ErrNotFound
	}
	return resolver.Result{Kind: resolver.KindSearch, Tracks: []state.Track{{
		ID: query, Title: query, Duration: 120000, URI: "https://youtu.be/" + query, Requester: req,
	}}}, nil
}

func (fakeResolver) Search(_ context.Context, query string, limit int) ([]state.Track, error) {
	return []state.Track{{ID: query + "-1"}, {ID: query + "-2"}}, nil
}

type env struct {
	reg *player.Registry
	hub *Hub
	srv *httptest.Server
}

func newEnv(t *testing.T, auth player.Authorizer) *env {
	t.Helper()
	reg := player.NewRegistry(player.DefaultOptions())
	hub := New(Options{
		Registry:   reg,
		Controller: &player.Controller{Registry: reg, Auth: auth},
		Resolver:   fakeResolver{},
		Version:    "test",
	})
	reg.SetBroadcaster(hub)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		reg.Shutdown()
	})
	return &env{reg: reg, hub: hub, srv: srv}
}

func (e *env) wsURL(userID string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?userId=" + userID
}

type wsConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *env) dial(t *testing.T, userID string) *wsConn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(userID), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsConn{t: t, conn: conn}
}

func (w *wsConn) send(event string, data any) {
	w.t.Helper()
	if err := w.conn.WriteJSON(state.Message{Event: event, Data: data}); err != nil {
		w.t.Fatal(err)
	}
}

// expect reads messages until one with event arrives.
func (w *wsConn) expect(event string) json.RawMessage {
	w.t.Helper()
	w.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg state.RawMessage
		if err := w.conn.ReadJSON(&msg); err != nil {
			w.t.Fatalf("waiting for %s: %v", event, err)
		}
		if msg.Event == event {
			return msg.Data
		}
	}
}

func (w *wsConn) expectState(match func(state.PlayerState) bool) state.PlayerState {
	w.t.Helper()
	w.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg state.RawMessage
		if err := w.conn.ReadJSON(&msg); err != nil {
			w.t.Fatalf("waiting for state: %v", err)
		}
		if msg.Event != state.EventPlayerState && msg.Event != state.EventQueueUpdate {
			continue
		}
		var ps state.PlayerState
		if err := json.Unmarshal(msg.Data, &ps); err != nil {
			w.t.Fatal(err)
		}
		if match(ps) {
			return ps
		}
	}
}

func TestJoinSendsSnapshot(t *testing.T) {
	e := newEnv(t, player.AllowAll)
	c := e.dial(t, "u1")
	c.send(state.EventJoinGuild, state.GuildPayload{GuildID: "g1"})

	var ps state.PlayerState
	if err := json.Unmarshal(c.expect(state.EventPlayerState), &ps); err != nil {
		t.Fatal(err)
	}
	if ps.GuildID != "g1" || ps.CurrentTrack != nil || ps.Volume != state.DefaultVolume {
		t.Fatalf("snapshot = %+v", ps)
	}
}

func TestControlWithoutPlayerReportsError(t *testing.T) {
	e := newEnv(t, player.AllowAll)
	c := e.dial(t, "u1")
	c.send(state.EventPlayerPause, state.GuildPayload{GuildID: "g1"})

	var p state.PlayerErrorPayload
	json.Unmarshal(c.expect(state.EventPlayerError), &p)
	if p.Message != "No active player in this server" || p.GuildID != "g1" {
		t.Fatalf("error = %+v", p)
	}
}

func TestQueueAddBroadcastsToRoom(t *testing.T) {
	e := newEnv(t, player.AllowAll)
	e.reg.Create("g1", player.SessionConfig{})

	a := e.dial(t, "u1")
	b := e.dial(t, "u2")
	for _, c := range []*wsConn{a, b} {
		c.send(state.EventJoinGuild, state.GuildPayload{GuildID: "g1"})
		c.expect(state.EventPlayerState)
	}

	a.send(state.EventQueueAdd, state.QueueAddPayload{GuildID: "g1", Query: "song"})
	ps := b.expectState(func(ps state.PlayerState) bool { return ps.CurrentTrack != nil })
	if ps.CurrentTrack.ID != "song" || ps.CurrentTrack.Requester.ID != "u1" {
		t.Fatalf("current = %+v", ps.CurrentTrack)
	}

	// a rejected action is reported to the sender only
	a.send(state.EventPlayerSeek, state.SeekPayload{GuildID: "g1", Position: 999999999})
	var p state.PlayerErrorPayload
	json.Unmarshal(a.expect(state.EventPlayerError), &p)
	if p.Message != "Value out of range" {
		t.Fatalf("error = %+v", p)
	}

	b.send(state.EventPlayerVolume, state.VolumePayload{GuildID: "g1", Volume: 30})
	ps = a.expectState(func(ps state.PlayerState) bool { return ps.Volume == 30 })
	if ps.CurrentTrack == nil {
		t.Fatal("volume broadcast lost the track")
	}
}

func TestNotPermitted(t *testing.T) {
	deny := player.AuthorizerFunc(func(context.Context, string, string, player.Op) error { return player.ErrNotPermitted })
	e := newEnv(t, deny)
	e.reg.Create("g1", player.SessionConfig{})
	c := e.dial(t, "u1")
	c.send(state.EventPlayerShuffle, state.GuildPayload{GuildID: "g1"})
	var p state.PlayerErrorPayload
	json.Unmarshal(c.expect(state.EventPlayerError), &p)
	if p.Message != "You need the DJ role to do that" {
		t.Fatalf("error = %+v", p)
	}
}

func TestSearchResults(t *testing.T) {
	e := newEnv(t, player.AllowAll)
	c := e.dial(t, "u1")
	c.send(state.EventSearch, state.SearchPayload{GuildID: "g1", Query: "lofi"})
	var r state.SearchResult
	json.Unmarshal(c.expect(state.EventSearchResults), &r)
	if len(r.Tracks) != 2 || r.Source != "search" {
		t.Fatalf("results = %+v", r)
	}
}

func TestBadMessage(t *testing.T) {
	e := newEnv(t, player.AllowAll)
	c := e.dial(t, "u1")
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	var p state.PlayerErrorPayload
	json.Unmarshal(c.expect(state.EventPlayerError), &p)
	if p.Message != "Bad request" {
		t.Fatalf("error = %+v", p)
	}
}

func TestMirrorClientConverges(t *testing.T) {
	e := newEnv(t, player.AllowAll)
	s, _ := e.reg.Create("g1", player.SessionConfig{})
	if _, err := s.QueueAddMany([]state.Track{
		{ID: "a", Duration: 100000}, {ID: "b", Duration: 100000}, {ID: "c", Duration: 100000},
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mc, err := mirror.Dial(ctx, e.wsURL("u1"), "g1", mirror.ClientOptions{Grace: 50 * time.Millisecond, RequeueOnRepeat: true})
	if err != nil {
		t.Fatal(err)
	}
	defer mc.Close()
	if err := mc.WaitJoined(ctx); err != nil {
		t.Fatal(err)
	}

	changed := make(chan state.PlayerState, 16)
	mc.Store().OnChange(func(ps state.PlayerState) { changed <- ps })
	if err := mc.Skip(); err != nil {
		t.Fatal(err)
	}
	if got := mc.Store().State().CurrentTrack.ID; got != "b" {
		t.Fatalf("predicted current = %s", got)
	}

	// the server's broadcast lands after the grace window
	for {
		select {
		case ps := <-changed:
			if ps.Seq > 0 && ps.CurrentTrack != nil && ps.CurrentTrack.ID == "b" && len(ps.Queue) == 1 {
				if srv := s.State(); ps.Seq != srv.Seq {
					continue
				}
				return
			}
		case <-ctx.Done():
			t.Fatalf("mirror never converged, showing %+v, server %+v", mc.Store().State(), s.State())
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	e := newEnv(t, player.AllowAll)
	e.reg.Create("g1", player.SessionConfig{})

	resp, err := http.Get(e.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var hr HealthResponse
	json.NewDecoder(resp.Body).Decode(&hr)
	resp.Body.Close()
	if hr.Status != "ok" || hr.Version != "test" {
		t.Fatalf("health = %+v", hr)
	}

	resp, err = http.Get(e.srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	var st Stats
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.Sessions != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestErrorMessageFallback(t *testing.T) {
	if got := errorMessage(context.DeadlineExceeded); got != "Something went wrong" {
		t.Fatalf("got %q", got)
	}
}
