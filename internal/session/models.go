package session

import "time"

// Story is the item currently under estimation. Updates replace it wholesale.
type Story struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Participant is one logical user inside a room. Vote is nil until a vote is
// cast and again after it is cleared.
type Participant struct {
	ID        string
	Name      string
	IsAdmin   bool
	Vote      *string
	HasVoted  bool
	JoinedAt  time.Time
	Connected bool
}

// Room is one estimation session.
type Room struct {
	Code              string
	Name              string
	AdminID           string
	Story             Story
	Revealed          bool
	EstimationStarted bool
	CreatedAt         time.Time
	LastActivity      time.Time

	participants map[string]*Participant
	order        []string // participant IDs in join order
}

// RoomSummary is the read-only room projection.
type RoomSummary struct {
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	ParticipantCount  int       `json:"participantCount"`
	AdminName         string    `json:"adminName"`
	Story             Story     `json:"story"`
	Revealed          bool      `json:"revealed"`
	EstimationStarted bool      `json:"estimationStarted"`
	CreatedAt         time.Time `json:"createdAt"`
	LastActivity      time.Time `json:"lastActivity"`
}

// ParticipantSummary is the per-participant projection. Vote is populated
// only while the room is revealed; before that only HasVoted is visible.
type ParticipantSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	IsAdmin   bool    `json:"isAdmin"`
	HasVoted  bool    `json:"hasVoted"`
	Vote      *string `json:"vote,omitempty"`
	Connected bool    `json:"connected"`
}

// VoteSummary aggregates the cast votes. Before reveal only TotalVoted is
// populated. Values holds the distinct vote tokens in the order they are
// first seen when scanning participants in join order; MostCommon is the
// first value in that order to reach the maximum count, which makes ties
// deterministic. Average is the mean of the votes that parse as numbers,
// nil when none do.
type VoteSummary struct {
	TotalVoted int      `json:"totalVoted"`
	Values     []string `json:"values"`
	MostCommon *string  `json:"mostCommon,omitempty"`
	Average    *float64 `json:"average,omitempty"`
}

// VotingResults is the projection consumed by the results endpoints and the
// fan-out gateway after votes change.
type VotingResults struct {
	Revealed     bool                 `json:"revealed"`
	Participants []ParticipantSummary `json:"participants"`
	Summary      VoteSummary          `json:"summary"`
}
