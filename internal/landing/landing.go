// Package landing defines the core domain types of a landing session.
// It has no dependencies outside the standard library.
package landing

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

type Role int

const (
	RoleUnknown Role = iota
	RoleDisplay
	RoleParticipant
)

// Handshake values sent by clients in the clientType query parameter.
const (
	ClientTypeScreen = "screen"
	ClientTypeWxApp  = "wxapp"
)

func ParseRole(clientType string) Role {
	switch clientType {
	case ClientTypeScreen:
		return RoleDisplay
	case ClientTypeWxApp:
		return RoleParticipant
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleDisplay:
		return "display"
	case RoleParticipant:
		return "participant"
	default:
		return "unknown"
	}
}

var ErrInvalidParticipant = errors.New("invalid participant info")

// ParticipantInfo is the user record a participant sends when connecting.
// Raw is kept verbatim because it is relayed to the display as-is.
type ParticipantInfo struct {
	Raw    string
	Fields map[string]any
}

// ParseParticipantInfo decodes the userInfo handshake value. The record must
// be a JSON object carrying a non-empty string "_id".
func ParseParticipantInfo(raw string) (*ParticipantInfo, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return nil, ErrInvalidParticipant
	}
	id, _ := fields["_id"].(string)
	if id == "" {
		return nil, ErrInvalidParticipant
	}
	return &ParticipantInfo{Raw: raw, Fields: fields}, nil
}

func (p *ParticipantInfo) ID() string {
	id, _ := p.Fields["_id"].(string)
	return id
}

// Leaderboard is the most recent page of users who landed.
type Leaderboard struct {
	Users []json.RawMessage `json:"users"`
	Total int               `json:"total"`
}

// Asset is the embeddable code image shown on the display.
type Asset struct {
	ContentType string
	Data        []byte
}

// DataURI renders the asset for an <img src>. An empty asset renders as "".
func (a Asset) DataURI() string {
	if len(a.Data) == 0 {
		return ""
	}
	return "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
