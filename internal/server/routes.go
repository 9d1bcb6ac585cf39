package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/marslanding/internal/broker"
	"github.com/playperu/marslanding/internal/handler/health"
)

var errNotBootstrapped = errors.New("no access token")

func addRoutes(r chi.Router, logger *slog.Logger, b *broker.Broker, ws WSOptions) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Mars Landing API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, map[string]health.Checker{
		"cloud": health.CheckerFunc(func(context.Context) error {
			if !b.Ready() {
				return errNotBootstrapped
			}
			return nil
		}),
	}).Routes())
	r.Get("/status", handleStatus(b))
	r.Get("/ws", handleWS(logger, b, ws))
}
