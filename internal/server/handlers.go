package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"sprintpoker/internal/session"
)

type createRoomRequest struct {
	Name      string `json:"name"`
	AdminName string `json:"adminName"`
}

type createRoomResponse struct {
	RoomCode      string `json:"roomCode"`
	ParticipantID string `json:"participantId"`
}

type joinRoomRequest struct {
	Name       string `json:"name"`
	WantsAdmin bool   `json:"wantsAdmin"`
}

type joinRoomResponse struct {
	ParticipantID string `json:"participantId"`
}

type storyRequest struct {
	ParticipantID string `json:"participantId"`
	Title         string `json:"title"`
	Description   string `json:"description"`
}

type voteRequest struct {
	ParticipantID string `json:"participantId"`
	Estimate      string `json:"estimate"`
}

type participantRequest struct {
	ParticipantID string `json:"participantId"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.AdminName) == "" {
		writeError(w, http.StatusBadRequest, "name and adminName are required")
		return
	}

	code, participantID := s.store.CreateRoom(req.Name, req.AdminName)
	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomCode:      code,
		ParticipantID: participantID,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	room, found := s.store.Room(code)
	if !found {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	var req joinRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	participantID, err := s.store.JoinRoom(code, req.Name, req.WantsAdmin)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.broadcastParticipants(code)
	s.broadcastRoom(code)
	writeJSON(w, http.StatusOK, joinRoomResponse{ParticipantID: participantID})
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	participantID := r.PathValue("participantId")
	if participantID == "" {
		writeError(w, http.StatusBadRequest, "participantId is required")
		return
	}

	if err := s.store.LeaveRoom(code, participantID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.broadcastParticipants(code)
	s.broadcastRoom(code)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateStory(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	var req storyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ParticipantID == "" || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "participantId and title are required")
		return
	}

	story := session.Story{Title: req.Title, Description: req.Description}
	if err := s.store.UpdateStory(code, req.ParticipantID, story); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.broadcastRoom(code)
	room, _ := s.store.Room(code)
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "participantId is required")
		return
	}

	if err := s.store.SubmitVote(code, req.ParticipantID, req.Estimate); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.broadcastParticipants(code)
	s.broadcastResults(code)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRevealVotes(w http.ResponseWriter, r *http.Request) {
	s.handleAdminAction(w, r, s.store.RevealVotes, func(code string) {
		s.broadcastResults(code)
	})
}

func (s *Server) handleResetVoting(w http.ResponseWriter, r *http.Request) {
	s.handleAdminAction(w, r, s.store.ResetVoting, func(code string) {
		s.broadcastParticipants(code)
		s.broadcastResults(code)
	})
}

func (s *Server) handleStartEstimation(w http.ResponseWriter, r *http.Request) {
	s.handleAdminAction(w, r, s.store.StartEstimation, func(code string) {
		s.broadcastParticipants(code)
		s.broadcastResults(code)
	})
}

// handleAdminAction factors the shared shape of reveal/reset/start: decode
// the caller, run the store operation, fan out, respond with fresh results.
func (s *Server) handleAdminAction(w http.ResponseWriter, r *http.Request, op func(code, participantID string) error, fanOut func(code string)) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	var req participantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "participantId is required")
		return
	}

	if err := op(code, req.ParticipantID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	fanOut(code)
	results, _ := s.store.Results(code)
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	results, found := s.store.Results(code)
	if !found {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetParticipants(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.Participants(code))
}

// roomCode validates the {code} path segment before it reaches the store.
func roomCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := r.PathValue("code")
	if !session.ValidCode(code) {
		writeError(w, http.StatusBadRequest, "invalid room code")
		return "", false
	}
	return code, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, session.ErrParticipantNotFound):
		writeError(w, http.StatusNotFound, "participant not found")
	case errors.Is(err, session.ErrNotAdmin):
		writeError(w, http.StatusForbidden, "admin rights required")
	case errors.Is(err, session.ErrAdminTaken):
		writeError(w, http.StatusConflict, "admin already active")
	case errors.Is(err, session.ErrVotesRevealed):
		writeError(w, http.StatusConflict, "votes already revealed")
	default:
		s.logger.Error("unexpected store error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
