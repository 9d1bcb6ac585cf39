package broker

import (
	"context"
	"fmt"

	"github.com/playperu/marslanding/internal/cloud"
	"github.com/playperu/marslanding/internal/landing"
)

type listLandedRequest struct {
	Limit       int    `json:"limit"`
	Skip        int    `json:"skip"`
	OrderBy     string `json:"orderBy"`
	OrderMethod string `json:"orderMethod"`
}

// RefreshLeaderboard fetches the latest landed users and replaces the cache.
// It must be called without b.mu held.
func (b *Broker) RefreshLeaderboard(ctx context.Context) (landing.Leaderboard, error) {
	resp, err := b.gateway.Invoke(context.WithoutCancel(ctx), FuncGetLandedUsers, b.accessToken(), b.env, listLandedRequest{
		Limit:       leaderboardSize,
		Skip:        0,
		OrderBy:     "landedDate",
		OrderMethod: "desc",
	})
	if err != nil {
		return landing.Leaderboard{}, err
	}

	var board landing.Leaderboard
	if err := cloud.Decode(resp, &board); err != nil {
		return landing.Leaderboard{}, fmt.Errorf("decoding %s: %w", FuncGetLandedUsers, err)
	}

	b.mu.Lock()
	b.board = board
	b.mu.Unlock()
	b.logger.Debug("leaderboard refreshed", "total", board.Total, "users", len(board.Users))
	return board, nil
}

// recordLanding marks the participant as landed and returns the backend's
// result object. It must be called without b.mu held.
func (b *Broker) recordLanding(ctx context.Context, participantID string) (map[string]any, error) {
	resp, err := b.gateway.Invoke(context.WithoutCancel(ctx), FuncUserLanded, b.accessToken(), b.env,
		map[string]string{"_id": participantID})
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := cloud.Decode(resp, &result); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", FuncUserLanded, err)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}
