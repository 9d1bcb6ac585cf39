// Package devcloud is a local stand-in for the cloud backend. It issues
// access tokens and serves the get-mpcode, get-landed-user and user-landed
// functions over the same HTTP API, backed by SQLite and redis.
package devcloud

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/marslanding/internal/cloud"
)

// Platform error codes, as in the real API.
const (
	codeSystemError      = -1
	codeInvalidToken     = 40001
	codeInvalidGrantType = 40002
	codeInvalidAppID     = 40013
	codeInvalidSecret    = 40125
	codeInvalidEnv       = -501000
	codeUnknownFunction  = -501002
)

const (
	grantType    = "client_credential"
	maxBodyBytes = 1 << 20
)

type platformError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type Handler struct {
	store  *Store
	tokens TokenStore
	env    string
	ttl    time.Duration
	funcs  map[string]function
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, store *Store, tokens TokenStore, env string, ttl time.Duration) *Handler {
	h := &Handler{
		store:  store,
		tokens: tokens,
		env:    env,
		ttl:    ttl,
		logger: logger,
	}
	h.funcs = h.functions()
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/cgi-bin/token", h.token)
	r.Post("/tcb/invokecloudfunction", h.invoke)
	return r
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("grant_type") != grantType {
		writePlatformError(w, codeInvalidGrantType, "invalid grant_type")
		return
	}

	appID := q.Get("appid")
	err := h.store.VerifyApp(r.Context(), appID, q.Get("secret"))
	switch {
	case errors.Is(err, ErrNotFound):
		writePlatformError(w, codeInvalidAppID, "invalid appid")
		return
	case errors.Is(err, ErrInvalidSecret):
		writePlatformError(w, codeInvalidSecret, "invalid appsecret")
		return
	case err != nil:
		h.logger.Error("verifying app", "appid", appID, "error", err)
		writePlatformError(w, codeSystemError, "system error")
		return
	}

	token, err := newToken()
	if err == nil {
		err = h.tokens.Put(r.Context(), token, appID, h.ttl)
	}
	if err != nil {
		h.logger.Error("issuing token", "appid", appID, "error", err)
		writePlatformError(w, codeSystemError, "system error")
		return
	}

	h.logger.Info("access token issued", "appid", appID)
	writeJSON(w, cloud.AccessToken{Value: token, ExpiresIn: int(h.ttl / time.Second)})
}

func (h *Handler) invoke(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	appID, err := h.tokens.Lookup(r.Context(), q.Get("access_token"))
	if errors.Is(err, ErrTokenNotFound) {
		writePlatformError(w, codeInvalidToken, "invalid credential, access_token is invalid or not latest")
		return
	}
	if err != nil {
		h.logger.Error("looking up token", "error", err)
		writePlatformError(w, codeSystemError, "system error")
		return
	}
	if q.Get("env") != h.env {
		writePlatformError(w, codeInvalidEnv, "invalid env")
		return
	}

	name := q.Get("name")
	fn, ok := h.funcs[name]
	if !ok {
		writePlatformError(w, codeUnknownFunction, "function not found: "+name)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writePlatformError(w, codeSystemError, "reading body: "+err.Error())
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	res, err := invoke(r.Context(), fn, body)
	if err != nil {
		h.logger.Error("function failed", "appid", appID, "function", name, "error", err)
		writePlatformError(w, codeSystemError, "system error")
		return
	}
	if res.Code != 0 {
		h.logger.Info("function rejected call", "appid", appID, "function", name, "code", res.Code)
	}

	data, err := json.Marshal(res)
	if err != nil {
		writePlatformError(w, codeSystemError, "system error")
		return
	}
	writeJSON(w, cloud.InvokeResponse{ErrMsg: "ok", RespData: string(data)})
}

// writePlatformError answers with HTTP 200 and an errcode body, which is
// how the platform reports every failure.
func writePlatformError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, platformError{ErrCode: code, ErrMsg: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
