package broker

import (
	"encoding/json"

	"github.com/playperu/marslanding/internal/landing"
)

// Conn is the transport side of one client connection.
//
// Emit and Close are called with the Broker's lock held: they must not block
// and must not call back into the Broker.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
	Close()
}

// Handshake carries the connection parameters a client declares on connect.
type Handshake struct {
	ClientType string
	UserInfo   string
}

// Outbound events.
const (
	EventBizError     = "biz_error"
	EventAfterConnect = "after_connect"
	EventPlayerJoin   = "player_join"
	EventPlayerLeave  = "player_leave"
	EventEnterSpace   = "enter_space"
	EventFinished     = "finished"
)

// Inbound events.
const (
	EventLandOnMars = "land_on_mars"
)

type DisplayConnected struct {
	ClientID     string            `json:"clientId"`
	MpCodeBase64 string            `json:"mpCodeBase64"`
	LandedUsers  []json.RawMessage `json:"landedUsers"`
	LandedCount  int               `json:"landedCount"`
}

type ParticipantConnected struct {
	ClientID string `json:"clientId"`
}

type PlayerJoin struct {
	ClientID string `json:"clientId"`
	UserInfo string `json:"userInfo"`
}

type ClientRef struct {
	ClientID string `json:"clientId"`
}

type FinishedFailure struct {
	Landed bool   `json:"landed"`
	ErrMsg string `json:"errMsg"`
}

// finishedWithBoard merges a completion result with the leaderboard. The
// result is an arbitrary object returned by the backend.
func finishedWithBoard(result map[string]any, board landing.Leaderboard) map[string]any {
	out := make(map[string]any, len(result)+2)
	for k, v := range result {
		out[k] = v
	}
	out["landedUsers"] = usersOrEmpty(board.Users)
	out["landedCount"] = board.Total
	return out
}

func usersOrEmpty(users []json.RawMessage) []json.RawMessage {
	if users == nil {
		return []json.RawMessage{}
	}
	return users
}
