package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sprintpoker/internal/session"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 4096
)

// Inbound message kinds.
const (
	msgJoin            = "join"
	msgLeave           = "leave"
	msgStartEstimation = "start-estimation"
	msgSubmitVote      = "submit-vote"
	msgRevealVotes     = "reveal-votes"
	msgResetVoting     = "reset-voting"
	msgUpdateStory     = "update-story"
)

// Outbound event kinds.
const (
	evtRoomState          = "room-state"
	evtParticipantsUpdate = "participants-update"
	evtRoomUpdate         = "room-update"
	evtResultsUpdate      = "results-update"
	evtParticipantGone    = "participant-disconnected"
	evtError              = "error"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type joinPayload struct {
	ParticipantID string `json:"participantId"`
}

type votePayload struct {
	Estimate string `json:"estimate"`
}

type storyPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return s.matchOrigin(origin) != ""
		},
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	if _, found := s.store.Room(code); !found {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", zap.Error(err))
		return
	}

	client := &wsClient{
		channelID: uuid.NewString(),
		roomCode:  code,
		conn:      conn,
	}
	s.hub.add(client)

	stopPing := make(chan struct{})
	go s.pingLoop(client, stopPing)

	defer func() {
		close(stopPing)
		s.hub.remove(client)
		conn.Close()
		s.channelClosed(client)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("websocket closed",
					zap.String("room", code),
					zap.Error(err),
				)
			}
			return
		}
		s.dispatch(client, msg)
	}
}

func (s *Server) pingLoop(client *wsClient, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}

// dispatch runs one inbound message against the store and fans out the
// resulting state. Rejected operations notify the originating channel only.
func (s *Server) dispatch(client *wsClient, msg inboundMessage) {
	code := client.roomCode

	switch msg.Type {
	case msgJoin:
		if client.participantID != "" {
			s.sendError(client, "already joined")
			return
		}
		var payload joinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ParticipantID == "" {
			s.sendError(client, "join requires a participantId")
			return
		}
		memberOf, ok := s.store.RoomByParticipant(payload.ParticipantID)
		if !ok || memberOf != code {
			s.sendError(client, "participant not in this room")
			return
		}
		if !s.store.BindChannel(payload.ParticipantID, client.channelID) {
			s.sendError(client, "participant not in this room")
			return
		}
		client.participantID = payload.ParticipantID

		room, _ := s.store.Room(code)
		results, _ := s.store.Results(code)
		_ = client.send(outboundEvent{Type: evtRoomState, Payload: map[string]any{
			"room":         room,
			"participants": s.store.Participants(code),
			"results":      results,
		}})
		s.hub.broadcast(code, client, s.participantsEvent(code))
		s.hub.broadcast(code, client, outboundEvent{Type: evtRoomUpdate, Payload: room})

	case msgLeave:
		if client.participantID == "" {
			s.sendError(client, "not joined")
			return
		}
		if err := s.store.LeaveRoom(code, client.participantID); err != nil {
			s.sendError(client, err.Error())
			return
		}
		client.participantID = ""
		s.broadcastParticipants(code)
		s.broadcastRoom(code)

	case msgSubmitVote:
		var payload votePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.sendError(client, "invalid vote payload")
			return
		}
		if err := s.requireJoined(client); err != nil {
			return
		}
		if err := s.store.SubmitVote(code, client.participantID, payload.Estimate); err != nil {
			s.sendError(client, err.Error())
			return
		}
		s.broadcastParticipants(code)
		s.broadcastResults(code)

	case msgRevealVotes:
		s.adminMessage(client, s.store.RevealVotes, func() {
			s.broadcastResults(code)
		})

	case msgResetVoting:
		s.adminMessage(client, s.store.ResetVoting, func() {
			s.broadcastParticipants(code)
			s.broadcastResults(code)
		})

	case msgStartEstimation:
		s.adminMessage(client, s.store.StartEstimation, func() {
			s.broadcastParticipants(code)
			s.broadcastResults(code)
		})

	case msgUpdateStory:
		var payload storyPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Title == "" {
			s.sendError(client, "story requires a title")
			return
		}
		if err := s.requireJoined(client); err != nil {
			return
		}
		story := session.Story{Title: payload.Title, Description: payload.Description}
		if err := s.store.UpdateStory(code, client.participantID, story); err != nil {
			s.sendError(client, err.Error())
			return
		}
		s.broadcastRoom(code)

	default:
		s.sendError(client, "unknown message type")
	}
}

func (s *Server) adminMessage(client *wsClient, op func(code, participantID string) error, fanOut func()) {
	if err := s.requireJoined(client); err != nil {
		return
	}
	if err := op(client.roomCode, client.participantID); err != nil {
		s.sendError(client, err.Error())
		return
	}
	fanOut()
}

func (s *Server) requireJoined(client *wsClient) error {
	if client.participantID == "" {
		s.sendError(client, "not joined")
		return errors.New("not joined")
	}
	return nil
}

// channelClosed handles the implicit close message: unbind the channel and,
// when that was the participant's last one, tell the room exactly once.
func (s *Server) channelClosed(client *wsClient) {
	participantID, disconnected, ok := s.store.UnbindChannel(client.channelID)
	if !ok || !disconnected {
		return
	}
	s.hub.broadcast(client.roomCode, nil, outboundEvent{
		Type: evtParticipantGone,
		Payload: map[string]any{
			"participantId": participantID,
			"participants":  s.store.Participants(client.roomCode),
		},
	})
}

func (s *Server) sendError(client *wsClient, message string) {
	_ = client.send(outboundEvent{Type: evtError, Payload: map[string]string{"message": message}})
}

func (s *Server) participantsEvent(code string) outboundEvent {
	return outboundEvent{
		Type:    evtParticipantsUpdate,
		Payload: map[string]any{"participants": s.store.Participants(code)},
	}
}

func (s *Server) broadcastParticipants(code string) {
	s.hub.broadcast(code, nil, s.participantsEvent(code))
}

func (s *Server) broadcastRoom(code string) {
	room, found := s.store.Room(code)
	if !found {
		return
	}
	s.hub.broadcast(code, nil, outboundEvent{Type: evtRoomUpdate, Payload: room})
}

func (s *Server) broadcastResults(code string) {
	results, found := s.store.Results(code)
	if !found {
		return
	}
	s.hub.broadcast(code, nil, outboundEvent{Type: evtResultsUpdate, Payload: results})
}
