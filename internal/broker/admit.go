package broker

import (
	"context"
	"fmt"

	"github.com/playperu/marslanding/internal/landing"
)

// Admit classifies a new connection and either registers it or rejects it.
// A rejected connection has already received a biz_error and been closed
// when Admit returns; the returned error is then a *BizError.
func (b *Broker) Admit(ctx context.Context, conn Conn, hs Handshake) error {
	role := landing.ParseRole(hs.ClientType)

	b.mu.Lock()
	status := b.registry.Status()
	b.logger.Debug("admitting connection", "client_id", conn.ID(), "role", role, "status", status)

	switch {
	case role == landing.RoleUnknown:
		b.mu.Unlock()
		return b.reject(conn, ErrParamMissing)

	case status == landing.StatusOccupied:
		b.mu.Unlock()
		return b.reject(conn, ErrServerBusy)

	case status == landing.StatusWaitingForDisplay && role != landing.RoleDisplay:
		b.mu.Unlock()
		return b.reject(conn, ErrNoScreen)

	case status == landing.StatusWaitingForDisplay:
		err := b.registry.Insert(&Client{ID: conn.ID(), Role: landing.RoleDisplay, conn: conn})
		b.mu.Unlock()
		if err != nil {
			return b.rejectDuplicate(conn, err)
		}
		return b.admitDisplay(ctx, conn)

	case status == landing.StatusWaitingForParticipant && role == landing.RoleParticipant:
		defer b.mu.Unlock()
		return b.admitParticipant(conn, hs.UserInfo)

	default:
		b.mu.Unlock()
		return b.reject(conn, ErrBadConnect)
	}
}

// admitDisplay finishes admission of a display that is already registered.
// The leaderboard call is a suspension point: the display may disconnect, or
// a participant may join, before it returns.
func (b *Broker) admitDisplay(ctx context.Context, conn Conn) error {
	board, err := b.RefreshLeaderboard(ctx)
	if err != nil {
		b.logger.Error("display admission failed", "client_id", conn.ID(), "error", err)
		b.emit(conn, EventBizError, ErrServerError)
		conn.Close()
		b.Disconnect(conn.ID())
		return fmt.Errorf("refreshing leaderboard: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registry.Get(conn.ID()) == nil {
		b.logger.Info("display left during admission", "client_id", conn.ID())
		return nil
	}
	b.emit(conn, EventAfterConnect, DisplayConnected{
		ClientID:     conn.ID(),
		MpCodeBase64: b.asset.DataURI(),
		LandedUsers:  usersOrEmpty(board.Users),
		LandedCount:  board.Total,
	})
	b.logger.Info("display connected", "client_id", conn.ID())
	return nil
}

// admitParticipant registers a participant. Callers hold b.mu.
func (b *Broker) admitParticipant(conn Conn, userInfo string) error {
	info, err := landing.ParseParticipantInfo(userInfo)
	if err != nil {
		return b.reject(conn, ErrParamMissing)
	}
	if err := b.registry.Insert(&Client{ID: conn.ID(), Role: landing.RoleParticipant, Info: info, conn: conn}); err != nil {
		return b.rejectDuplicate(conn, err)
	}

	b.emit(conn, EventAfterConnect, ParticipantConnected{ClientID: conn.ID()})
	b.broadcast(conn.ID(), EventPlayerJoin, PlayerJoin{ClientID: conn.ID(), UserInfo: info.Raw})
	b.logger.Info("participant connected", "client_id", conn.ID(), "participant_id", info.ID())
	return nil
}

// rejectDuplicate handles a transport handing out an id twice. The existing
// client is left untouched.
func (b *Broker) rejectDuplicate(conn Conn, err error) error {
	b.logger.Error("connection id reused", "client_id", conn.ID(), "error", err)
	b.emit(conn, EventBizError, ErrBadConnect)
	conn.Close()
	return err
}
