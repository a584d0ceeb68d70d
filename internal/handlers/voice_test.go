package handlers

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

type voiceCall struct {
	guild, channel, session, token, endpoint string
}

type fakeForwarder struct {
	mu    sync.Mutex
	calls []voiceCall
	err   error
}

func (f *fakeForwarder) VoiceUpdate(guildID, channelID, sessionID, token, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, voiceCall{guildID, channelID, sessionID, token, endpoint})
	return f.err
}

func TestVoiceTrackerPairsHalves(t *testing.T) {
	tests := []struct {
		name       string
		stateFirst bool
	}{
		{"state then server", true},
		{"server then state", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd := &fakeForwarder{}
			vt := newVoiceTracker(fwd)
			if tt.stateFirst {
				vt.stateUpdate("g1", "v1", "sess")
				if len(fwd.calls) != 0 {
					t.Fatalf("forwarded a half handshake: %v", fwd.calls)
				}
				vt.serverUpdate("g1", "tok", "eu.discord.media")
			} else {
				vt.serverUpdate("g1", "tok", "eu.discord.media")
				if len(fwd.calls) != 0 {
					t.Fatalf("forwarded a half handshake: %v", fwd.calls)
				}
				vt.stateUpdate("g1", "v1", "sess")
			}
			want := voiceCall{"g1", "v1", "sess", "tok", "eu.discord.media"}
			if len(fwd.calls) != 1 || fwd.calls[0] != want {
				t.Fatalf("calls = %v, want [%v]", fwd.calls, want)
			}
		})
	}
}

func TestVoiceTrackerMoveAndLeave(t *testing.T) {
	fwd := &fakeForwarder{}
	vt := newVoiceTracker(fwd)
	vt.stateUpdate("g1", "v1", "sess")
	vt.serverUpdate("g1", "tok", "ep")

	// moving channels keeps the server half
	vt.stateUpdate("g1", "v2", "sess")
	if len(fwd.calls) != 2 || fwd.calls[1].channel != "v2" {
		t.Fatalf("calls after move = %v", fwd.calls)
	}

	vt.stateUpdate("g1", "", "")
	vt.serverUpdate("g1", "tok2", "ep2")
	if len(fwd.calls) != 2 {
		t.Fatalf("forwarded after leaving: %v", fwd.calls)
	}
}

func TestVoiceTrackerForwardErrorTolerated(t *testing.T) {
	fwd := &fakeForwarder{err: errors.New("node down")}
	vt := newVoiceTracker(fwd)
	vt.serverUpdate("g1", "tok", "ep")
	vt.stateUpdate("g1", "v1", "sess")
	if len(fwd.calls) != 1 {
		t.Fatalf("calls = %v", fwd.calls)
	}
	vt.forget("g1")
	vt.serverUpdate("g1", "tok", "ep")
	if len(fwd.calls) != 1 {
		t.Fatalf("forwarded after forget: %v", fwd.calls)
	}
}

func TestVoiceTrackerNilForwarder(t *testing.T) {
	vt := newVoiceTracker(nil)
	vt.stateUpdate("g1", "v1", "sess")
	vt.serverUpdate("g1", "tok", "ep")
}

type fakeVoiceTimer struct {
	joined, left []string
}

func (f *fakeVoiceTimer) VoiceJoin(userID string)  { f.joined = append(f.joined, userID) }
func (f *fakeVoiceTimer) VoiceLeave(userID string) { f.left = append(f.left, userID) }

func TestMoveListeners(t *testing.T) {
	info := stateInfo{st: testState(t)}

	vt := &fakeVoiceTimer{}
	moveListeners(vt, info, "g1", "v1", "v2")
	slices.Sort(vt.left)
	if !slices.Equal(vt.left, []string{"u1", "u3"}) || !slices.Equal(vt.joined, []string{"u2"}) {
		t.Fatalf("moved: left %v joined %v", vt.left, vt.joined)
	}

	vt = &fakeVoiceTimer{}
	moveListeners(vt, info, "g1", "v1", "")
	if len(vt.left) != 2 || len(vt.joined) != 0 {
		t.Fatalf("kicked: left %v joined %v", vt.left, vt.joined)
	}
}
