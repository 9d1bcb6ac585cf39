// Package broker pairs one display client with one participant client and
// relays session events between them.
//
// All registry and cache access happens under a single mutex. The lock is
// released only around cloud calls; handlers re-resolve clients from the
// registry after every such call because the client may have gone.
package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/playperu/marslanding/internal/cloud"
	"github.com/playperu/marslanding/internal/landing"
)

// Gateway is the cloud backend used for tokens and function calls.
type Gateway interface {
	FetchAccessToken(ctx context.Context) (cloud.AccessToken, error)
	Invoke(ctx context.Context, name, token, env string, body any) (cloud.InvokeResponse, error)
}

// Cloud function names.
const (
	FuncGetMpCode      = "get-mpcode"
	FuncGetLandedUsers = "get-landed-user"
	FuncUserLanded     = "user-landed"
)

const leaderboardSize = 10

// MpCodeOptions describes the embeddable code requested at bootstrap.
type MpCodeOptions struct {
	Path  string
	Width int
}

type Broker struct {
	gateway Gateway
	env     string
	mpcode  MpCodeOptions
	logger  *slog.Logger

	mu       sync.Mutex
	registry *Registry
	token    cloud.AccessToken
	asset    landing.Asset
	board    landing.Leaderboard
}

func New(gateway Gateway, env string, mpcode MpCodeOptions, logger *slog.Logger) *Broker {
	return &Broker{
		gateway:  gateway,
		env:      env,
		mpcode:   mpcode,
		logger:   logger,
		registry: NewRegistry(),
	}
}

// Status evaluates the server status against the current registry.
func (b *Broker) Status() landing.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Status()
}

// Snapshot is a point-in-time view for operators.
type Snapshot struct {
	Status               string `json:"status"`
	DisplayConnected     bool   `json:"displayConnected"`
	ParticipantConnected bool   `json:"participantConnected"`
	LandedCount          int    `json:"landedCount"`
	Bootstrapped         bool   `json:"bootstrapped"`
}

func (b *Broker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Status:               b.registry.Status().String(),
		DisplayConnected:     b.registry.CountByRole(landing.RoleDisplay) > 0,
		ParticipantConnected: b.registry.CountByRole(landing.RoleParticipant) > 0,
		LandedCount:          b.board.Total,
		Bootstrapped:         b.token.Value != "",
	}
}

// emit sends to one client and logs transport failures. Callers hold b.mu.
func (b *Broker) emit(c Conn, event string, payload any) {
	if err := c.Emit(event, payload); err != nil {
		b.logger.Debug("emit failed", "client_id", c.ID(), "event", event, "error", err)
	}
}

// broadcast sends to every registered client except the sender. Callers
// hold b.mu.
func (b *Broker) broadcast(senderID, event string, payload any) {
	for _, c := range b.registry.Others(senderID) {
		b.emit(c.conn, event, payload)
	}
}

// otherIDs lists every registered client except id. Callers hold b.mu.
func (b *Broker) otherIDs(id string) []string {
	others := b.registry.Others(id)
	ids := make([]string, len(others))
	for i, c := range others {
		ids[i] = c.ID
	}
	return ids
}

// emitEach sends to the clients in ids that are still registered. Callers
// hold b.mu.
func (b *Broker) emitEach(ids []string, event string, payload any) {
	for _, id := range ids {
		if c := b.registry.Get(id); c != nil {
			b.emit(c.conn, event, payload)
		}
	}
}

// reject sends a biz_error and closes the connection.
func (b *Broker) reject(conn Conn, bizErr *BizError) error {
	b.emit(conn, EventBizError, bizErr)
	conn.Close()
	b.logger.Info("connection rejected", "client_id", conn.ID(), "code", bizErr.Code)
	return bizErr
}
