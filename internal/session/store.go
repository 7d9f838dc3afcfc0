// Package session holds the in-memory room/participant/vote state machine
// shared by the HTTP and websocket gateways.
package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the registry of rooms, participants, votes and channel bindings.
// All methods are safe for concurrent use; mutations on a room are serialized
// by the store lock, so no two operations ever interleave on the same room.
type Store struct {
	logger *zap.Logger

	mu                  sync.RWMutex
	rooms               map[string]*Room
	channels            map[string]string              // channel ID → participant ID
	participantChannels map[string]map[string]struct{} // participant ID → live channel IDs
	participantRooms    map[string]string              // participant ID → room code
}

// NewStore creates an empty Store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger:              logger,
		rooms:               make(map[string]*Room),
		channels:            make(map[string]string),
		participantChannels: make(map[string]map[string]struct{}),
		participantRooms:    make(map[string]string),
	}
}

// CreateRoom creates a room with a fresh collision-checked code and seeds it
// with one admin participant.
func (s *Store) CreateRoom(name, adminName string) (code, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	admin := &Participant{
		ID:       uuid.NewString(),
		Name:     adminName,
		IsAdmin:  true,
		JoinedAt: now,
	}
	room := &Room{
		Code:         newRoomCode(s.rooms),
		Name:         name,
		AdminID:      admin.ID,
		CreatedAt:    now,
		LastActivity: now,
		participants: map[string]*Participant{admin.ID: admin},
		order:        []string{admin.ID},
	}
	s.rooms[room.Code] = room
	s.participantRooms[admin.ID] = room.Code

	s.logger.Info("room created",
		zap.String("room", room.Code),
		zap.String("admin", admin.ID),
	)
	return room.Code, admin.ID
}

// JoinRoom adds a participant to an existing room. Requesting admin fails
// with ErrAdminTaken while another participant holds the role.
func (s *Store) JoinRoom(code, name string, wantsAdmin bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return "", ErrRoomNotFound
	}
	if wantsAdmin && room.AdminID != "" {
		return "", ErrAdminTaken
	}

	p := &Participant{
		ID:       uuid.NewString(),
		Name:     name,
		IsAdmin:  wantsAdmin,
		JoinedAt: time.Now(),
	}
	room.participants[p.ID] = p
	room.order = append(room.order, p.ID)
	if wantsAdmin {
		room.AdminID = p.ID
	}
	s.participantRooms[p.ID] = code
	room.LastActivity = time.Now()
	return p.ID, nil
}

// LeaveRoom removes a participant. A departing admin hands the role to the
// earliest-joined remaining participant; the last participant leaving
// destroys the room.
func (s *Store) LeaveRoom(code, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	p, ok := room.participants[participantID]
	if !ok {
		return ErrParticipantNotFound
	}

	delete(room.participants, participantID)
	for i, id := range room.order {
		if id == participantID {
			room.order = append(room.order[:i], room.order[i+1:]...)
			break
		}
	}
	s.releaseBindingsLocked(participantID)
	delete(s.participantRooms, participantID)

	if len(room.participants) == 0 {
		delete(s.rooms, code)
		s.logger.Info("room destroyed", zap.String("room", code))
		return nil
	}
	if p.IsAdmin {
		next := room.participants[room.order[0]]
		next.IsAdmin = true
		room.AdminID = next.ID
		s.logger.Info("admin promoted",
			zap.String("room", code),
			zap.String("participant", next.ID),
		)
	}
	room.LastActivity = time.Now()
	return nil
}

// UpdateStory replaces the room's story. Admin only.
func (s *Store) UpdateStory(code, participantID string, story Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.adminRoomLocked(code, participantID)
	if err != nil {
		return err
	}
	room.Story = story
	room.LastActivity = time.Now()
	return nil
}

// SubmitVote records a vote for any participant. Votes are immutable once
// revealed. An empty estimate clears the participant's vote; any other value
// is stored verbatim as an opaque token.
func (s *Store) SubmitVote(code, participantID, estimate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	p, ok := room.participants[participantID]
	if !ok {
		return ErrParticipantNotFound
	}
	if room.Revealed {
		return ErrVotesRevealed
	}

	if estimate == "" {
		p.Vote = nil
		p.HasVoted = false
	} else {
		v := estimate
		p.Vote = &v
		p.HasVoted = true
	}
	room.LastActivity = time.Now()
	return nil
}

// RevealVotes makes every cast vote visible in projections. Admin only and
// idempotent.
func (s *Store) RevealVotes(code, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.adminRoomLocked(code, participantID)
	if err != nil {
		return err
	}
	room.Revealed = true
	room.LastActivity = time.Now()
	return nil
}

// ResetVoting clears all votes and returns the room to the idle, hidden
// state.
func (s *Store) ResetVoting(code, participantID string) error {
	return s.clearRound(code, participantID, false)
}

// StartEstimation clears all votes and marks a fresh round as live.
func (s *Store) StartEstimation(code, participantID string) error {
	return s.clearRound(code, participantID, true)
}

func (s *Store) clearRound(code, participantID string, started bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.adminRoomLocked(code, participantID)
	if err != nil {
		return err
	}
	for _, p := range room.participants {
		p.Vote = nil
		p.HasVoted = false
	}
	room.Revealed = false
	room.EstimationStarted = started
	room.LastActivity = time.Now()
	return nil
}

// adminRoomLocked resolves a room and verifies the caller holds the admin
// role. Caller must hold the store lock.
func (s *Store) adminRoomLocked(code, participantID string) (*Room, error) {
	room, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	p, ok := room.participants[participantID]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	if !p.IsAdmin {
		return nil, ErrNotAdmin
	}
	return room, nil
}

// Room returns the room projection and refreshes its activity timestamp.
func (s *Store) Room(code string) (RoomSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return RoomSummary{}, false
	}
	room.LastActivity = time.Now()
	return s.roomSummaryLocked(room), true
}

func (s *Store) roomSummaryLocked(room *Room) RoomSummary {
	adminName := ""
	if admin, ok := room.participants[room.AdminID]; ok {
		adminName = admin.Name
	}
	return RoomSummary{
		Code:              room.Code,
		Name:              room.Name,
		ParticipantCount:  len(room.participants),
		AdminName:         adminName,
		Story:             room.Story,
		Revealed:          room.Revealed,
		EstimationStarted: room.EstimationStarted,
		CreatedAt:         room.CreatedAt,
		LastActivity:      room.LastActivity,
	}
}

// Participants returns the participant projections in join order, or an
// empty list for an unknown room. Vote values are withheld while the room is
// not revealed.
func (s *Store) Participants(code string) []ParticipantSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[code]
	if !ok {
		return []ParticipantSummary{}
	}
	return s.participantsLocked(room)
}

func (s *Store) participantsLocked(room *Room) []ParticipantSummary {
	out := make([]ParticipantSummary, 0, len(room.order))
	for _, id := range room.order {
		p := room.participants[id]
		summary := ParticipantSummary{
			ID:        p.ID,
			Name:      p.Name,
			IsAdmin:   p.IsAdmin,
			HasVoted:  p.HasVoted,
			Connected: p.Connected,
		}
		if room.Revealed && p.Vote != nil {
			v := *p.Vote
			summary.Vote = &v
		}
		out = append(out, summary)
	}
	return out
}

// Results returns the voting results projection.
func (s *Store) Results(code string) (VotingResults, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[code]
	if !ok {
		return VotingResults{}, false
	}
	return VotingResults{
		Revealed:     room.Revealed,
		Participants: s.participantsLocked(room),
		Summary:      summarizeVotes(room),
	}, true
}

// summarizeVotes scans participants in join order, so the distinct-value
// list and the most-common tie-break are deterministic. While the room is
// not revealed only the voted count is populated; vote values stay hidden
// in every projection until reveal.
func summarizeVotes(room *Room) VoteSummary {
	summary := VoteSummary{Values: []string{}}
	counts := make(map[string]int)
	var numericSum float64
	var numericCount int

	for _, id := range room.order {
		p := room.participants[id]
		if !p.HasVoted || p.Vote == nil {
			continue
		}
		summary.TotalVoted++
		if !room.Revealed {
			continue
		}
		v := *p.Vote
		if counts[v] == 0 {
			summary.Values = append(summary.Values, v)
		}
		counts[v]++
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			numericSum += f
			numericCount++
		}
	}

	best := 0
	for _, v := range summary.Values {
		if counts[v] > best {
			best = counts[v]
			value := v
			summary.MostCommon = &value
		}
	}
	if numericCount > 0 {
		avg := numericSum / float64(numericCount)
		summary.Average = &avg
	}
	return summary
}
