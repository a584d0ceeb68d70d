package audionode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonroyaalmerol/beatbox/internal/state"
)

type event struct {
	kind    string
	guildID string
	detail  string
}

type handler struct {
	ch chan event
}

func (h *handler) OnTrackEnd(g, reason string)      { h.ch <- event{"end", g, reason} }
func (h *handler) OnTrackError(g, msg string)       { h.ch <- event{"error", g, msg} }
func (h *handler) OnPlayerUpdate(g string, _ int64) { h.ch <- event{"update", g, ""} }
func (h *handler) OnVoiceClosed(g string)           { h.ch <- event{"closed", g, ""} }

type frame struct {
	Op   uint8           `json:"op"`
	Data json.RawMessage `json:"d"`
}

// fakeNode accepts one connection and exposes what it reads.
type fakeNode struct {
	srv        *httptest.Server
	received   chan frame
	clientName string

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	n := &fakeNode{received: make(chan frame, 64)}
	up := websocket.Upgrader{}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n.mu.Lock()
		n.conn = conn
		n.clientName = r.Header.Get("Client-Name")
		n.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(data, &f) == nil {
				n.received <- f
			}
		}
	}))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) url() string { return "ws" + strings.TrimPrefix(n.srv.URL, "http") }

func (n *fakeNode) send(t *testing.T, op uint8, d any) {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.WriteJSON(Message{Op: op, Data: d}); err != nil {
		t.Fatalf("node write: %v", err)
	}
}

func (n *fakeNode) next(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-n.received:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return frame{}
	}
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func start(t *testing.T, n *fakeNode, h EventHandler) *Client {
	t.Helper()
	c := New(Options{URL: n.url(), BotID: 42, Handler: h, ReconnectInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestNotConnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1"})
	if err := c.Pause("1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Pause = %v, want ErrNotConnected", err)
	}
}

func TestBadGuildID(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1"})
	if err := c.Stop("not-a-snowflake"); err == nil || errors.Is(err, ErrNotConnected) {
		t.Fatalf("Stop = %v, want parse error", err)
	}
}

func TestIdentifyAndCommands(t *testing.T) {
	n := newFakeNode(t)
	c := start(t, n, nil)

	f := n.next(t)
	if f.Op != OpIdentify {
		t.Fatalf("first op = %d, want identify", f.Op)
	}
	var id IdentifyData
	json.Unmarshal(f.Data, &id)
	if id.ClientID != 42 {
		t.Fatalf("bot id = %d", id.ClientID)
	}
	waitConnected(t, c)

	n.mu.Lock()
	name := n.clientName
	n.mu.Unlock()
	if name != "beatbox" {
		t.Fatalf("Client-Name = %q", name)
	}

	if err := c.Play("100", state.Track{URI: "https://example.com/a"}, 1500, 70); err != nil {
		t.Fatal(err)
	}
	f = n.next(t)
	if f.Op != OpPlay {
		t.Fatalf("op = %d, want play", f.Op)
	}
	var pd PlayData
	json.Unmarshal(f.Data, &pd)
	if pd.GuildID != 100 || pd.URL != "https://example.com/a" || pd.StartTime != 1500 || pd.Volume != 70 {
		t.Fatalf("play data = %+v", pd)
	}

	if err := c.Seek("100", 9000); err != nil {
		t.Fatal(err)
	}
	f = n.next(t)
	var sd SeekData
	json.Unmarshal(f.Data, &sd)
	if f.Op != OpSeek || sd.Position != 9000 {
		t.Fatalf("seek frame = %d %+v", f.Op, sd)
	}
}

func TestEventsDispatched(t *testing.T) {
	n := newFakeNode(t)
	h := &handler{ch: make(chan event, 8)}
	c := start(t, n, h)
	n.next(t)
	waitConnected(t, c)

	n.send(t, OpReady, ReadyData{SessionID: "s1"})
	n.send(t, OpTrackEnd, TrackEndData{GuildID: 7, Reason: "finished"})
	n.send(t, OpTrackError, TrackErrorData{GuildID: 7, Error: "boom"})
	n.send(t, OpVoiceDisconnect, VoiceDisconnectData{GuildID: 7, Reason: "requested"})
	n.send(t, OpVoiceDisconnect, VoiceDisconnectData{GuildID: 8, Reason: "kicked"})

	want := []event{
		{"end", "7", "finished"},
		{"error", "7", "boom"},
		{"closed", "8", ""},
	}
	for _, w := range want {
		select {
		case got := <-h.ch:
			if got != w {
				t.Fatalf("event = %+v, want %+v", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %+v", w)
		}
	}
	if c.SessionID() != "s1" {
		t.Fatalf("session id = %q", c.SessionID())
	}
}

func TestVoiceUpdateReplayedAfterReconnect(t *testing.T) {
	n := newFakeNode(t)
	c := start(t, n, nil)
	n.next(t)
	waitConnected(t, c)

	if err := c.VoiceUpdate("100", "200", "sess", "tok", "voice.example"); err != nil {
		t.Fatal(err)
	}
	if f := n.next(t); f.Op != OpVoiceUpdate {
		t.Fatalf("op = %d, want voice update", f.Op)
	}

	n.mu.Lock()
	n.conn.Close()
	n.mu.Unlock()

	if f := n.next(t); f.Op != OpIdentify {
		t.Fatalf("op after reconnect = %d, want identify", f.Op)
	}
	f := n.next(t)
	var vu VoiceUpdateData
	json.Unmarshal(f.Data, &vu)
	if f.Op != OpVoiceUpdate || vu.ChannelID != 200 || vu.Event.Token != "tok" {
		t.Fatalf("replayed frame = %d %+v", f.Op, vu)
	}
}
