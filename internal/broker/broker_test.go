package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/playperu/marslanding/internal/cloud"
	"github.com/playperu/marslanding/internal/landing"
)

type emitted struct {
	Event string
	Data  json.RawMessage
}

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []emitted
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, emitted{Event: event, Data: data})
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// only returns the events with the given name, decoded into maps.
func (c *fakeConn) only(t *testing.T, event string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, e := range c.events {
		if e.Event != event {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(e.Data, &m); err != nil {
			t.Fatalf("decoding %s payload: %v", event, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type invocation struct {
	Name  string
	Token string
	Env   string
	Body  any
}

type fakeGateway struct {
	mu       sync.Mutex
	tokenErr error
	results  map[string]any   // function name -> data
	errs     map[string]error // function name -> transport error
	calls    []invocation
	// hook runs before a function returns, to simulate interleaving.
	hook func(name string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results: map[string]any{
			FuncGetMpCode: map[string]any{
				"contentType": "image/png",
				"buffer":      cloud.Buffer("png-bytes"),
			},
			FuncGetLandedUsers: map[string]any{
				"users": []map[string]any{{"_id": "u0", "nickName": "Neil"}},
				"total": 1,
			},
			FuncUserLanded: map[string]any{"landed": true, "landedDate": "2026-10-19T10:00:00Z"},
		},
		errs: map[string]error{},
	}
}

func (g *fakeGateway) FetchAccessToken(context.Context) (cloud.AccessToken, error) {
	if g.tokenErr != nil {
		return cloud.AccessToken{}, g.tokenErr
	}
	return cloud.AccessToken{Value: "tok", ExpiresIn: 7200}, nil
}

func (g *fakeGateway) Invoke(_ context.Context, name, token, env string, body any) (cloud.InvokeResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, invocation{Name: name, Token: token, Env: env, Body: body})
	err := g.errs[name]
	data := g.results[name]
	hook := g.hook
	g.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	if err != nil {
		return cloud.InvokeResponse{}, err
	}
	raw, _ := json.Marshal(data)
	resp, _ := json.Marshal(cloud.Result{Code: 200, Data: raw})
	return cloud.InvokeResponse{ErrMsg: "ok", RespData: string(resp)}, nil
}

func (g *fakeGateway) callsTo(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

func newTestBroker(t *testing.T, gw *fakeGateway) *Broker {
	t.Helper()
	b := New(gw, "test-env", MpCodeOptions{Path: "/pages/io/io", Width: 640}, slog.Default())
	if err := b.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return b
}

func admitDisplay(t *testing.T, b *Broker, id string) *fakeConn {
	t.Helper()
	c := newFakeConn(id)
	if err := b.Admit(context.Background(), c, Handshake{ClientType: landing.ClientTypeScreen}); err != nil {
		t.Fatalf("admit display %s: %v", id, err)
	}
	return c
}

func admitParticipant(t *testing.T, b *Broker, id, userInfo string) *fakeConn {
	t.Helper()
	c := newFakeConn(id)
	if err := b.Admit(context.Background(), c, Handshake{ClientType: landing.ClientTypeWxApp, UserInfo: userInfo}); err != nil {
		t.Fatalf("admit participant %s: %v", id, err)
	}
	return c
}

func assertCardinality(t *testing.T, b *Broker) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.registry.CountByRole(landing.RoleDisplay); n > 1 {
		t.Fatalf("%d displays registered", n)
	}
	if n := b.registry.CountByRole(landing.RoleParticipant); n > 1 {
		t.Fatalf("%d participants registered", n)
	}
}

func assertBizError(t *testing.T, err error, want *BizError, c *fakeConn) {
	t.Helper()
	var bizErr *BizError
	if !errors.As(err, &bizErr) || bizErr.Code != want.Code {
		t.Fatalf("err = %v, want %s", err, want.Code)
	}
	got := c.only(t, EventBizError)
	if len(got) != 1 || got[0]["code"] != want.Code || got[0]["message"] != want.Message {
		t.Fatalf("biz_error events = %v, want one %s", got, want.Code)
	}
	if !c.isClosed() {
		t.Fatal("rejected connection was not closed")
	}
}
