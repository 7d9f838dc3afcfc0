package session

import (
	"time"

	"go.uber.org/zap"
)

// BindChannel associates a transport channel with a participant and marks
// them connected. Returns false if the participant is not in any room.
func (s *Store) BindChannel(participantID, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.participantRooms[participantID]
	if !ok {
		return false
	}
	s.channels[channelID] = participantID
	set := s.participantChannels[participantID]
	if set == nil {
		set = make(map[string]struct{})
		s.participantChannels[participantID] = set
	}
	set[channelID] = struct{}{}

	if room, ok := s.rooms[code]; ok {
		if p, ok := room.participants[participantID]; ok {
			p.Connected = true
		}
		room.LastActivity = time.Now()
	}
	return true
}

// UnbindChannel removes one channel binding. The participant flips to
// disconnected only when their last channel goes away; that transition is
// reported atomically with the unbind so a concurrent re-bind cannot be
// clobbered by a stale disconnect.
func (s *Store) UnbindChannel(channelID string) (participantID string, disconnected, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participantID, ok = s.channels[channelID]
	if !ok {
		return "", false, false
	}
	delete(s.channels, channelID)

	set := s.participantChannels[participantID]
	delete(set, channelID)
	if len(set) > 0 {
		return participantID, false, true
	}
	delete(s.participantChannels, participantID)

	if code, found := s.participantRooms[participantID]; found {
		if room, live := s.rooms[code]; live {
			if p, present := room.participants[participantID]; present {
				p.Connected = false
			}
			room.LastActivity = time.Now()
		}
	}
	s.logger.Debug("participant disconnected", zap.String("participant", participantID))
	return participantID, true, true
}

// HasActiveChannel reports whether at least one channel is bound to the
// participant.
func (s *Store) HasActiveChannel(participantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participantChannels[participantID]) > 0
}

// RoomByParticipant resolves the room a participant currently belongs to.
func (s *Store) RoomByParticipant(participantID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.participantRooms[participantID]
	return code, ok
}

// releaseBindingsLocked drops every channel bound to a participant. Caller
// must hold the store lock.
func (s *Store) releaseBindingsLocked(participantID string) {
	for ch := range s.participantChannels[participantID] {
		delete(s.channels, ch)
	}
	delete(s.participantChannels, participantID)
}
