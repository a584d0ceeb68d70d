package player

import "github.com/sonroyaalmerol/beatbox/internal/state"

type VoteResult struct {
	Votes    int
	Required int
	Skipped  bool
	Track    state.Track
}

// RequiredVotes is ceil(listeners/2), never less than one.
func RequiredVotes(listeners int) int {
	return max(1, (listeners+1)/2)
}

// VoteSkip records userID's vote against the current track and skips once
// the votes reach a majority of listeners. Repeat votes count once.
func (s *Session) VoteSkip(userID string, listeners int) (VoteResult, error) {
	s.lock()
	defer s.unlock()
	if err := s.checkLocked(); err != nil {
		return VoteResult{}, err
	}
	if s.ps.CurrentTrack == nil {
		return VoteResult{}, ErrNothingPlaying
	}
	if s.votes == nil {
		s.votes = make(map[string]struct{})
	}
	s.votes[userID] = struct{}{}
	res := VoteResult{
		Votes:    len(s.votes),
		Required: RequiredVotes(listeners),
		Track:    *s.ps.CurrentTrack,
	}
	if res.Votes < res.Required {
		return res, nil
	}
	if err := s.skipLocked(); err != nil {
		return res, err
	}
	res.Skipped = true
	return res, nil
}

func (s *Session) Votes() int {
	s.lock()
	defer s.unlock()
	return len(s.votes)
}
