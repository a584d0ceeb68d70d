package player

// ListenersChanged is called whenever the human listener count of the bot's
// voice channel changes. Zero listeners arms the disconnect timer unless 24/7
// mode is on; any listener cancels it.
func (s *Session) ListenersChanged(humans int) {
	s.lock()
	defer s.unlock()
	if s.destroyed {
		return
	}
	if humans == 0 {
		if s.twentyFourSeven {
			s.log.Info("no listeners left, 24/7 mode keeps the player", "guildID", s.guildID)
			return
		}
		s.log.Info("no listeners left, arming disconnect timer", "guildID", s.guildID, "timeout", s.idleAfter)
		s.armDisconnectLocked()
		s.publishLocked()
		return
	}
	if s.cancelDisconnectLocked() {
		s.log.Info("listener rejoined, disconnect cancelled", "guildID", s.guildID, "listeners", humans)
		s.publishLocked()
	}
}

// HandleVoiceClosed handles the bot being removed from its voice channel by someone
// else. The player lingers for the disconnect timeout so it can be resumed.
func (s *Session) HandleVoiceClosed() {
	s.lock()
	defer s.unlock()
	if s.destroyed || s.twentyFourSeven {
		return
	}
	s.voiceChanID = ""
	s.armDisconnectLocked()
	s.publishLocked()
}

// CancelDisconnect is called for explicit user activity such as play or
// loadqueue. It reports whether a timer was pending.
func (s *Session) CancelDisconnect() bool {
	s.lock()
	defer s.unlock()
	if s.destroyed || !s.cancelDisconnectLocked() {
		return false
	}
	s.publishLocked()
	return true
}

func (s *Session) DisconnectPending() bool {
	s.lock()
	defer s.unlock()
	return s.disconnect != nil
}

func (s *Session) TwentyFourSeven() bool {
	s.lock()
	defer s.unlock()
	return s.twentyFourSeven
}

// SetTwentyFourSeven toggles 24/7 mode. Turning it on cancels a pending
// disconnect.
func (s *Session) SetTwentyFourSeven(on bool) {
	s.lock()
	defer s.unlock()
	s.twentyFourSeven = on
	if on && !s.destroyed && s.cancelDisconnectLocked() {
		s.publishLocked()
	}
}

// armDisconnectLocked replaces any pending timer, so there is never more than
// one per guild. Playback is paused while the timer runs.
func (s *Session) armDisconnectLocked() {
	s.cancelTimerLocked()
	if s.ps.CurrentTrack != nil && !s.ps.Paused {
		if err := s.audio.Pause(s.guildID); err != nil {
			s.log.Warn("pause while idle", "guildID", s.guildID, "err", err)
		}
		s.ps.Paused = true
		s.ps.Playing = false
		s.pausedForIdle = true
	}
	gen := s.disconnectGen
	s.disconnect = s.clk.AfterFunc(s.idleAfter, func() { s.disconnectFired(gen) })
}

// cancelDisconnectLocked stops a pending timer and resumes playback it had
// paused. It is a no-op without a pending timer.
func (s *Session) cancelDisconnectLocked() bool {
	if !s.cancelTimerLocked() {
		return false
	}
	if s.pausedForIdle && s.ps.CurrentTrack != nil {
		if err := s.audio.Resume(s.guildID); err != nil {
			s.log.Warn("resume after idle", "guildID", s.guildID, "err", err)
		}
		s.ps.Paused = false
		s.ps.Playing = true
	}
	s.pausedForIdle = false
	return true
}

func (s *Session) cancelTimerLocked() bool {
	if s.disconnect == nil {
		return false
	}
	s.disconnect.Stop()
	s.disconnect = nil
	s.disconnectGen++
	return true
}

// disconnectFired ignores callbacks from timers that were replaced or
// cancelled after they started firing.
func (s *Session) disconnectFired(gen uint64) {
	s.lock()
	defer s.unlock()
	if s.destroyed || s.disconnect == nil || gen != s.disconnectGen {
		return
	}
	s.disconnect = nil
	s.disconnectGen++
	s.log.Info("disconnect timeout reached", "guildID", s.guildID)
	s.destroyLocked("disconnect timeout")
}
