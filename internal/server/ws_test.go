package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sprintpoker/internal/session"
)

type testEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newWSTestServer(t *testing.T) (*httptest.Server, *Server, *session.Store) {
	t.Helper()
	cfg := Config{Port: "0", AllowedOrigins: []string{"*"}}
	store := session.NewStore(zap.NewNop())
	srv := New(cfg, zap.NewNop(), store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv, store
}

// waitPeers blocks until the hub tracks want channels for the room, so
// tests can order assertions around asynchronous connection teardown.
func waitPeers(t *testing.T, srv *Server, code string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv.hub.mu.Lock()
		n := len(srv.hub.rooms[code])
		srv.hub.mu.Unlock()
		if n == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d peers for room %s", want, code)
}

func dialRoom(t *testing.T, ts *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/rooms/" + code
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func readEvent(t *testing.T, conn *websocket.Conn) testEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt testEvent
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func expectNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var evt testEvent
	err := conn.ReadJSON(&evt)
	require.Error(t, err, "unexpected event %q", evt.Type)
}

func joinChannel(t *testing.T, conn *websocket.Conn, participantID string) {
	t.Helper()
	sendMessage(t, conn, msgJoin, map[string]string{"participantId": participantID})
	evt := readEvent(t, conn)
	require.Equal(t, evtRoomState, evt.Type)
}

func TestWebsocketUnknownRoom(t *testing.T) {
	ts, _, _ := newWSTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/rooms/ZZZZZ2"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		resp.Body.Close()
	}
}

func TestWebsocketJoinBroadcasts(t *testing.T) {
	ts, _, store := newWSTestServer(t)
	code, aliceID := store.CreateRoom("Sprint 1", "Alice")
	bobID, err := store.JoinRoom(code, "Bob", false)
	require.NoError(t, err)

	alice := dialRoom(t, ts, code)
	joinChannel(t, alice, aliceID)

	bob := dialRoom(t, ts, code)
	sendMessage(t, bob, msgJoin, map[string]string{"participantId": bobID})

	evt := readEvent(t, bob)
	require.Equal(t, evtRoomState, evt.Type)
	var state struct {
		Room         session.RoomSummary          `json:"room"`
		Participants []session.ParticipantSummary `json:"participants"`
		Results      session.VotingResults        `json:"results"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &state))
	assert.Equal(t, code, state.Room.Code)
	assert.Len(t, state.Participants, 2)

	// The rest of the room hears about the join.
	evt = readEvent(t, alice)
	assert.Equal(t, evtParticipantsUpdate, evt.Type)
	evt = readEvent(t, alice)
	assert.Equal(t, evtRoomUpdate, evt.Type)
}

func TestWebsocketVoteBroadcasts(t *testing.T) {
	ts, _, store := newWSTestServer(t)
	code, aliceID := store.CreateRoom("Sprint 1", "Alice")
	bobID, err := store.JoinRoom(code, "Bob", false)
	require.NoError(t, err)

	alice := dialRoom(t, ts, code)
	joinChannel(t, alice, aliceID)
	bob := dialRoom(t, ts, code)
	joinChannel(t, bob, bobID)

	// Drain the join fan-out on Alice's channel.
	readEvent(t, alice)
	readEvent(t, alice)

	sendMessage(t, bob, msgSubmitVote, map[string]string{"estimate": "5"})

	evt := readEvent(t, alice)
	require.Equal(t, evtParticipantsUpdate, evt.Type)
	var parts struct {
		Participants []session.ParticipantSummary `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &parts))
	var bobSummary *session.ParticipantSummary
	for i := range parts.Participants {
		if parts.Participants[i].ID == bobID {
			bobSummary = &parts.Participants[i]
		}
	}
	require.NotNil(t, bobSummary)
	assert.True(t, bobSummary.HasVoted)
	assert.Nil(t, bobSummary.Vote, "vote value must stay hidden")

	evt = readEvent(t, alice)
	require.Equal(t, evtResultsUpdate, evt.Type)
	var results session.VotingResults
	require.NoError(t, json.Unmarshal(evt.Payload, &results))
	assert.False(t, results.Revealed)
	assert.Equal(t, 1, results.Summary.TotalVoted)
}

func TestWebsocketRejectedOperationNotifiesSenderOnly(t *testing.T) {
	ts, _, store := newWSTestServer(t)
	code, aliceID := store.CreateRoom("Sprint 1", "Alice")
	bobID, err := store.JoinRoom(code, "Bob", false)
	require.NoError(t, err)

	alice := dialRoom(t, ts, code)
	joinChannel(t, alice, aliceID)
	bob := dialRoom(t, ts, code)
	joinChannel(t, bob, bobID)
	readEvent(t, alice)
	readEvent(t, alice)

	// Bob is not admin, so reveal is rejected.
	sendMessage(t, bob, msgRevealVotes, nil)
	evt := readEvent(t, bob)
	assert.Equal(t, evtError, evt.Type)

	expectNoEvent(t, alice)
}

func TestWebsocketJoinUnknownParticipant(t *testing.T) {
	ts, _, store := newWSTestServer(t)
	code, _ := store.CreateRoom("Sprint 1", "Alice")

	conn := dialRoom(t, ts, code)
	sendMessage(t, conn, msgJoin, map[string]string{"participantId": "ghost"})
	evt := readEvent(t, conn)
	assert.Equal(t, evtError, evt.Type)
}

func TestWebsocketUnknownMessageType(t *testing.T) {
	ts, _, store := newWSTestServer(t)
	code, aliceID := store.CreateRoom("Sprint 1", "Alice")

	conn := dialRoom(t, ts, code)
	joinChannel(t, conn, aliceID)
	sendMessage(t, conn, "teleport", nil)
	evt := readEvent(t, conn)
	assert.Equal(t, evtError, evt.Type)
}

func TestWebsocketDisconnectNoticeFiresOnce(t *testing.T) {
	ts, srv, store := newWSTestServer(t)
	code, aliceID := store.CreateRoom("Sprint 1", "Alice")
	bobID, err := store.JoinRoom(code, "Bob", false)
	require.NoError(t, err)

	alice := dialRoom(t, ts, code)
	joinChannel(t, alice, aliceID)

	// Bob holds two tabs on the same participant.
	bob1 := dialRoom(t, ts, code)
	joinChannel(t, bob1, bobID)
	readEvent(t, alice)
	readEvent(t, alice)
	bob2 := dialRoom(t, ts, code)
	joinChannel(t, bob2, bobID)
	readEvent(t, alice)
	readEvent(t, alice)

	// First tab closing leaves Bob connected; no notice.
	require.NoError(t, bob1.Close())
	waitPeers(t, srv, code, 2)
	assert.True(t, store.HasActiveChannel(bobID))

	// Second tab closing disconnects Bob; exactly one notice.
	require.NoError(t, bob2.Close())
	evt := readEvent(t, alice)
	require.Equal(t, evtParticipantGone, evt.Type)
	var notice struct {
		ParticipantID string                       `json:"participantId"`
		Participants  []session.ParticipantSummary `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &notice))
	assert.Equal(t, bobID, notice.ParticipantID)

	expectNoEvent(t, alice)
	assert.False(t, store.HasActiveChannel(bobID))
}

func TestWebsocketLeaveBroadcasts(t *testing.T) {
	ts, _, store := newWSTestServer(t)
	code, aliceID := store.CreateRoom("Sprint 1", "Alice")
	bobID, err := store.JoinRoom(code, "Bob", false)
	require.NoError(t, err)

	alice := dialRoom(t, ts, code)
	joinChannel(t, alice, aliceID)
	bob := dialRoom(t, ts, code)
	joinChannel(t, bob, bobID)
	readEvent(t, alice)
	readEvent(t, alice)

	sendMessage(t, bob, msgLeave, nil)

	evt := readEvent(t, alice)
	require.Equal(t, evtParticipantsUpdate, evt.Type)
	var parts struct {
		Participants []session.ParticipantSummary `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(evt.Payload, &parts))
	assert.Len(t, parts.Participants, 1)

	evt = readEvent(t, alice)
	assert.Equal(t, evtRoomUpdate, evt.Type)

	_, ok := store.RoomByParticipant(bobID)
	assert.False(t, ok)
}
