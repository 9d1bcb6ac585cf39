package devcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"

	"github.com/skip2/go-qrcode"

	"github.com/playperu/marslanding/internal/cloud"
)

// function is a cloud function. Returned *funcError values become the
// {code, msg} result seen by the caller; other errors are internal.
type function func(ctx context.Context, body json.RawMessage) (any, error)

type funcError struct {
	Code int
	Msg  string
}

func (e *funcError) Error() string { return fmt.Sprintf("function error %d: %s", e.Code, e.Msg) }

func badRequest(format string, args ...any) error {
	return &funcError{Code: 400, Msg: fmt.Sprintf(format, args...)}
}

const (
	mpCodeDefaultWidth = 430
	mpCodeMinWidth     = 280
	mpCodeMaxWidth     = 1280

	landedDefaultLimit = 10
	landedMaxLimit     = 100
)

func (h *Handler) functions() map[string]function {
	return map[string]function{
		"get-mpcode":      h.getMpCode,
		"get-landed-user": h.getLandedUsers,
		"user-landed":     h.userLanded,
	}
}

type mpCodeRequest struct {
	Path      string `json:"path"`
	Width     int    `json:"width"`
	IsHyaline bool   `json:"is_hyaline"`
	LineColor struct {
		R uint8 `json:"r"`
		G uint8 `json:"g"`
		B uint8 `json:"b"`
	} `json:"line_color"`
}

type mpCodeResponse struct {
	ContentType string       `json:"contentType"`
	Buffer      cloud.Buffer `json:"buffer"`
}

// getMpCode renders the path as a QR code PNG.
func (h *Handler) getMpCode(_ context.Context, body json.RawMessage) (any, error) {
	var req mpCodeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, badRequest("invalid body: %v", err)
	}
	if req.Path == "" {
		return nil, badRequest("path is required")
	}
	if req.Width == 0 {
		req.Width = mpCodeDefaultWidth
	}
	if req.Width < mpCodeMinWidth || req.Width > mpCodeMaxWidth {
		return nil, badRequest("width must be between %d and %d", mpCodeMinWidth, mpCodeMaxWidth)
	}

	q, err := qrcode.New(req.Path, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}
	q.ForegroundColor = color.RGBA{R: req.LineColor.R, G: req.LineColor.G, B: req.LineColor.B, A: 0xff}
	if req.IsHyaline {
		q.BackgroundColor = color.Transparent
	}
	png, err := q.PNG(req.Width)
	if err != nil {
		return nil, fmt.Errorf("rendering qr code: %w", err)
	}
	return mpCodeResponse{ContentType: "image/png", Buffer: png}, nil
}

type listLandedRequest struct {
	Limit       int    `json:"limit"`
	Skip        int    `json:"skip"`
	OrderBy     string `json:"orderBy"`
	OrderMethod string `json:"orderMethod"`
}

type listLandedResponse struct {
	Users []LandedUser `json:"users"`
	Total int          `json:"total"`
}

func (h *Handler) getLandedUsers(ctx context.Context, body json.RawMessage) (any, error) {
	var req listLandedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, badRequest("invalid body: %v", err)
	}
	if req.Limit == 0 {
		req.Limit = landedDefaultLimit
	}
	if req.Limit < 0 || req.Limit > landedMaxLimit {
		return nil, badRequest("limit must be between 1 and %d", landedMaxLimit)
	}
	if req.Skip < 0 {
		return nil, badRequest("skip must not be negative")
	}
	if req.OrderBy != "" && req.OrderBy != "landedDate" {
		return nil, badRequest("cannot order by %q", req.OrderBy)
	}

	var desc bool
	switch req.OrderMethod {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return nil, badRequest("unknown orderMethod %q", req.OrderMethod)
	}

	users, total, err := h.store.ListLanded(ctx, req.Limit, req.Skip, desc)
	if err != nil {
		return nil, err
	}
	return listLandedResponse{Users: users, Total: total}, nil
}

type userLandedResponse struct {
	Landed     bool   `json:"landed"`
	LandedDate string `json:"landedDate"`
	ID         string `json:"_id"`
}

// userLanded marks the user in body as landed. Fields besides _id are kept
// as the user's record.
func (h *Handler) userLanded(ctx context.Context, body json.RawMessage) (any, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, badRequest("invalid body: %v", err)
	}
	id, _ := fields["_id"].(string)
	if id == "" {
		return nil, badRequest("_id is required")
	}

	u, err := h.store.MarkLanded(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	return userLandedResponse{
		Landed:     true,
		LandedDate: u.LandedDate.Format(dateLayout),
		ID:         u.ID,
	}, nil
}

// invoke runs fn and wraps its outcome in the function result envelope.
func invoke(ctx context.Context, fn function, body json.RawMessage) (cloud.Result, error) {
	out, err := fn(ctx, body)
	var fe *funcError
	if errors.As(err, &fe) {
		msg, _ := json.Marshal(fe.Msg)
		return cloud.Result{Code: fe.Code, Msg: msg}, nil
	}
	if err != nil {
		return cloud.Result{}, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return cloud.Result{}, fmt.Errorf("encoding result: %w", err)
	}
	return cloud.Result{Data: data}, nil
}
