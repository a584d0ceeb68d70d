package mirror

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/sonroyaalmerol/beatbox/internal/state"
	"github.com/sonroyaalmerol/beatbox/internal/utils"
)

// Each prediction mirrors the server's handling of the same operation. Input
// the server would reject leaves the state untouched. Previous has no
// prediction because history only exists on the server.

func PredictPause() Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		if ps.CurrentTrack == nil {
			return ps
		}
		ps.Paused = true
		ps.Playing = false
		return ps
	}
}

func PredictResume() Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		if ps.CurrentTrack == nil {
			return ps
		}
		ps.Paused = false
		ps.Playing = true
		return ps
	}
}

// PredictSkip must be given the server's queue repeat policy.
func PredictSkip(requeue bool, now time.Time) Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		return state.Advance(ps, requeue, now)
	}
}

func PredictStop() Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		return state.Stopped(ps)
	}
}

func PredictVolume(v int) Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		if v < 0 || v > state.MaxVolume {
			return ps
		}
		ps.Volume = v
		return ps
	}
}

func PredictSeek(ms int64) Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		if ps.CurrentTrack == nil || ms < 0 || ms > ps.CurrentTrack.Duration {
			return ps
		}
		ps.Position = ms
		return ps
	}
}

func PredictRemove(index int) Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		if index < 0 || index >= len(ps.Queue) {
			return ps
		}
		out := ps.Clone()
		out.Queue = slices.Delete(out.Queue, index, index+1)
		state.Reindex(out.Queue)
		return out
	}
}

func PredictClear() Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		ps.Queue = []state.QueueTrack{}
		return ps
	}
}

// PredictShuffle uses r for the permutation. The server draws its own, so the
// displayed order is replaced once the broadcast is applied.
func PredictShuffle(r *rand.Rand) Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		if len(ps.Queue) < 2 {
			return ps
		}
		out := ps.Clone()
		utils.ShuffleSlice(out.Queue, r)
		state.Reindex(out.Queue)
		return out
	}
}

func PredictRepeat(mode state.RepeatMode) Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		if _, err := state.ParseRepeatMode(string(mode)); err != nil {
			return ps
		}
		ps.RepeatMode = mode
		return ps
	}
}

func PredictMove(from, to int) Prediction {
	return func(ps state.PlayerState) state.PlayerState {
		n := len(ps.Queue)
		if from < 0 || from >= n || to < 0 || to >= n {
			return ps
		}
		out := ps.Clone()
		item := out.Queue[from]
		out.Queue = slices.Delete(out.Queue, from, from+1)
		out.Queue = slices.Insert(out.Queue, to, item)
		state.Reindex(out.Queue)
		return out
	}
}
