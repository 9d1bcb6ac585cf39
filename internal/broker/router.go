package broker

import (
	"context"
	"errors"

	"github.com/playperu/marslanding/internal/landing"
)

var errNoParticipant = errors.New("no participant connected")

// HandleEvent dispatches an event sent by an admitted client.
func (b *Broker) HandleEvent(ctx context.Context, id, event string) {
	switch event {
	case EventEnterSpace:
		b.enterSpace(id)
	case EventLandOnMars:
		b.landOnMars(ctx, id)
	default:
		b.logger.Debug("ignoring unknown event", "client_id", id, "event", event)
	}
}

func (b *Broker) enterSpace(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registry.Get(id) == nil {
		return
	}
	b.logger.Info("participant entered space", "client_id", id)
	b.broadcast(id, EventEnterSpace, ClientRef{ClientID: id})
}

// landOnMars records the current participant's landing and ends the session.
// finished goes to the clients connected when the request arrived that are
// still connected afterwards, whether or not the backend calls succeed. A
// participant who joined during the calls is not part of this landing.
func (b *Broker) landOnMars(ctx context.Context, senderID string) {
	b.mu.Lock()
	if b.registry.Get(senderID) == nil {
		b.mu.Unlock()
		return
	}
	var participantID string
	if p := b.registry.FirstByRole(landing.RoleParticipant); p != nil {
		participantID = p.Info.ID()
	}
	recipients := b.otherIDs(senderID)
	b.mu.Unlock()

	if participantID == "" {
		b.logger.Warn("landing requested without a participant", "client_id", senderID)
		b.finishFailed(senderID, recipients, errNoParticipant)
		return
	}

	result, err := b.recordLanding(ctx, participantID)
	if err != nil {
		b.logger.Error("recording landing failed", "participant_id", participantID, "error", err)
		b.finishFailed(senderID, recipients, err)
		return
	}
	board, err := b.RefreshLeaderboard(ctx)
	if err != nil {
		b.logger.Error("refreshing leaderboard after landing failed", "error", err)
		b.finishFailed(senderID, recipients, err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sender := b.registry.Get(senderID); sender != nil {
		b.emit(sender.conn, EventFinished, finishedWithBoard(result, board))
	}
	b.emitEach(recipients, EventFinished, result)
	b.logger.Info("participant landed", "participant_id", participantID, "landed_count", board.Total)
}

func (b *Broker) finishFailed(senderID string, recipients []string, err error) {
	payload := FinishedFailure{Landed: false, ErrMsg: err.Error()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sender := b.registry.Get(senderID); sender != nil {
		b.emit(sender.conn, EventFinished, payload)
	}
	b.emitEach(recipients, EventFinished, payload)
}

// Disconnect applies the departure policy for id. Losing the participant
// frees the slot; losing the display ends the session for everyone. Unknown
// ids (rejected or already evicted connections) are ignored.
func (b *Broker) Disconnect(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.registry.Get(id)
	if c == nil {
		return
	}

	switch c.Role {
	case landing.RoleParticipant:
		b.registry.Remove(id)
		b.broadcast(id, EventPlayerLeave, ClientRef{ClientID: id})
		b.logger.Info("participant disconnected", "client_id", id)

	case landing.RoleDisplay:
		others := b.registry.Others(id)
		for _, o := range others {
			o.conn.Close()
		}
		b.registry.Clear()
		b.logger.Info("display disconnected, session closed", "client_id", id, "evicted", len(others))
	}
}
