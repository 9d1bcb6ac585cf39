package broker

import (
	"context"
	"fmt"

	"github.com/playperu/marslanding/internal/cloud"
	"github.com/playperu/marslanding/internal/landing"
)

type mpCodeRequest struct {
	Path      string `json:"path"`
	Width     int    `json:"width"`
	IsHyaline bool   `json:"is_hyaline"`
	LineColor rgb    `json:"line_color"`
}

type rgb struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type mpCodeData struct {
	ContentType string       `json:"contentType"`
	Buffer      cloud.Buffer `json:"buffer"`
}

// Bootstrap acquires the access token and then the display's embeddable
// code. It runs once, before connections are accepted. A token failure is
// returned; an asset failure only leaves the asset empty.
//
// The token is never refreshed, so it is only valid for ExpiresIn seconds.
func (b *Broker) Bootstrap(ctx context.Context) error {
	token, err := b.gateway.FetchAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("acquiring access token: %w", err)
	}
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
	b.logger.Info("access token acquired", "expires_in", token.ExpiresIn)

	asset, err := b.fetchAsset(ctx, token.Value)
	if err != nil {
		b.logger.Error("fetching display code failed", "error", err)
		return nil
	}
	b.mu.Lock()
	b.asset = asset
	b.mu.Unlock()
	b.logger.Info("display code fetched", "content_type", asset.ContentType, "bytes", len(asset.Data))
	return nil
}

func (b *Broker) fetchAsset(ctx context.Context, token string) (landing.Asset, error) {
	resp, err := b.gateway.Invoke(ctx, FuncGetMpCode, token, b.env, mpCodeRequest{
		Path:      b.mpcode.Path,
		Width:     b.mpcode.Width,
		IsHyaline: true,
	})
	if err != nil {
		return landing.Asset{}, err
	}

	var data mpCodeData
	if err := cloud.Decode(resp, &data); err != nil {
		return landing.Asset{}, fmt.Errorf("decoding %s: %w", FuncGetMpCode, err)
	}
	if len(data.Buffer) == 0 {
		return landing.Asset{}, fmt.Errorf("decoding %s: empty image", FuncGetMpCode)
	}
	return landing.Asset{ContentType: data.ContentType, Data: data.Buffer}, nil
}

// Ready reports whether bootstrap acquired a token.
func (b *Broker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token.Value != ""
}

func (b *Broker) accessToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token.Value
}
