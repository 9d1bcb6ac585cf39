package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/marslanding/internal/broker"
)

// HealthResponse maps each dependency to its check result.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

// WSHandshake documents the websocket query parameters.
type WSHandshake struct {
	ClientType string `query:"clientType" enum:"screen,wxapp" required:"true" description:"screen for the display, wxapp for the participant."`
	UserInfo   string `query:"userInfo" description:"JSON user record with an _id. Required for wxapp."`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Mars Landing API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Session broker pairing one display with one participant.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Reports whether the server holds a cloud access token.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /status
	getStatus, _ := r.NewOperationContext(http.MethodGet, "/status")
	getStatus.SetSummary("Session status")
	getStatus.SetDescription("Returns the server status derived from the connected clients.")
	getStatus.AddRespStructure(broker.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getStatus)

	// GET /ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/ws")
	getWS.SetSummary("Session websocket")
	getWS.SetDescription("Upgrades to a websocket carrying JSON frames {event, data}. " +
		"Rejected clients receive one biz_error frame before the socket is closed. " +
		"Admitted clients receive after_connect; participants may send enter_space, displays land_on_mars.")
	getWS.AddReqStructure(WSHandshake{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
