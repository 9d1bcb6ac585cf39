package broker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/playperu/marslanding/internal/landing"
)

func TestAdmitDisplay(t *testing.T) {
	gw := newFakeGateway()
	b := newTestBroker(t, gw)

	if got := b.Status(); got != landing.StatusWaitingForDisplay {
		t.Fatalf("initial status = %v", got)
	}

	d := admitDisplay(t, b, "d1")

	got := d.only(t, EventAfterConnect)
	if len(got) != 1 {
		t.Fatalf("after_connect events = %d, want 1", len(got))
	}
	ac := got[0]
	if ac["clientId"] != "d1" {
		t.Errorf("clientId = %v", ac["clientId"])
	}
	if code, _ := ac["mpCodeBase64"].(string); !strings.HasPrefix(code, "data:image/png;base64,") {
		t.Errorf("mpCodeBase64 = %q", code)
	}
	if ac["landedCount"] != float64(1) {
		t.Errorf("landedCount = %v, want 1", ac["landedCount"])
	}
	if users, _ := ac["landedUsers"].([]any); len(users) != 1 {
		t.Errorf("landedUsers = %v", ac["landedUsers"])
	}
	if b.Status() != landing.StatusWaitingForParticipant {
		t.Errorf("status = %v, want waiting for participant", b.Status())
	}
	if n := gw.callsTo(FuncGetLandedUsers); n != 1 {
		t.Errorf("leaderboard calls = %d, want 1", n)
	}
}

func TestAdmitDisplayWithoutAsset(t *testing.T) {
	gw := newFakeGateway()
	gw.errs[FuncGetMpCode] = errors.New("cloud down")
	b := newTestBroker(t, gw)

	d := admitDisplay(t, b, "d1")
	got := d.only(t, EventAfterConnect)
	if len(got) != 1 || got[0]["mpCodeBase64"] != "" {
		t.Fatalf("after_connect = %v, want empty mpCodeBase64", got)
	}
}

func TestAdmitParticipant(t *testing.T) {
	b := newTestBroker(t, newFakeGateway())
	d := admitDisplay(t, b, "d1")

	p := admitParticipant(t, b, "p1", `{"_id":"u1"}`)

	got := p.only(t, EventAfterConnect)
	if len(got) != 1 || got[0]["clientId"] != "p1" || len(got[0]) != 1 {
		t.Fatalf("participant after_connect = %v", got)
	}
	joins := d.only(t, EventPlayerJoin)
	if len(joins) != 1 || joins[0]["clientId"] != "p1" || joins[0]["userInfo"] != `{"_id":"u1"}` {
		t.Fatalf("display player_join = %v", joins)
	}
	if len(p.only(t, EventPlayerJoin)) != 0 {
		t.Error("participant received its own player_join")
	}
	if b.Status() != landing.StatusOccupied {
		t.Errorf("status = %v, want occupied", b.Status())
	}
}

func TestAdmitRejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, b *Broker)
		hs    Handshake
		want  *BizError
	}{
		{
			name: "missing client type",
			hs:   Handshake{},
			want: ErrParamMissing,
		},
		{
			name: "unknown client type",
			hs:   Handshake{ClientType: "tv"},
			want: ErrParamMissing,
		},
		{
			name: "participant before display",
			hs:   Handshake{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":"u1"}`},
			want: ErrNoScreen,
		},
		{
			name:  "second display",
			setup: func(t *testing.T, b *Broker) { admitDisplay(t, b, "d1") },
			hs:    Handshake{ClientType: landing.ClientTypeScreen},
			want:  ErrBadConnect,
		},
		{
			name:  "malformed user info",
			setup: func(t *testing.T, b *Broker) { admitDisplay(t, b, "d1") },
			hs:    Handshake{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":`},
			want:  ErrParamMissing,
		},
		{
			name: "busy rejects display",
			setup: func(t *testing.T, b *Broker) {
				admitDisplay(t, b, "d1")
				admitParticipant(t, b, "p1", `{"_id":"u1"}`)
			},
			hs:   Handshake{ClientType: landing.ClientTypeScreen},
			want: ErrServerBusy,
		},
		{
			name: "busy rejects participant",
			setup: func(t *testing.T, b *Broker) {
				admitDisplay(t, b, "d1")
				admitParticipant(t, b, "p1", `{"_id":"u1"}`)
			},
			hs:   Handshake{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":"u2"}`},
			want: ErrServerBusy,
		},
		{
			name: "unknown client type while occupied",
			setup: func(t *testing.T, b *Broker) {
				admitDisplay(t, b, "d1")
				admitParticipant(t, b, "p1", `{"_id":"u1"}`)
			},
			hs:   Handshake{ClientType: "nope"},
			want: ErrParamMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(t, newFakeGateway())
			if tt.setup != nil {
				tt.setup(t, b)
			}
			before := b.Snapshot()

			c := newFakeConn("x")
			err := b.Admit(context.Background(), c, tt.hs)
			assertBizError(t, err, tt.want, c)

			if len(c.only(t, EventAfterConnect)) != 0 {
				t.Error("rejected connection received after_connect")
			}
			if after := b.Snapshot(); after != before {
				t.Errorf("registry changed: before %+v after %+v", before, after)
			}
			assertCardinality(t, b)
		})
	}
}

func TestAdmitInconsistentStatus(t *testing.T) {
	b := newTestBroker(t, newFakeGateway())
	// Force a state admission never produces.
	b.registry.Insert(&Client{ID: "d1", Role: landing.RoleDisplay, conn: newFakeConn("d1")})
	b.registry.Insert(&Client{ID: "d2", Role: landing.RoleDisplay, conn: newFakeConn("d2")})

	c := newFakeConn("p1")
	err := b.Admit(context.Background(), c, Handshake{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":"u1"}`})
	assertBizError(t, err, ErrBadConnect, c)
}

func TestAdmitDisplayLeaderboardFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.errs[FuncGetLandedUsers] = errors.New("timeout")
	b := newTestBroker(t, gw)

	c := newFakeConn("d1")
	err := b.Admit(context.Background(), c, Handshake{ClientType: landing.ClientTypeScreen})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(c.only(t, EventAfterConnect)) != 0 {
		t.Error("display received after_connect")
	}
	if got := c.only(t, EventBizError); len(got) != 1 || got[0]["code"] != ErrServerError.Code {
		t.Errorf("biz_error = %v, want %s", got, ErrServerError.Code)
	}
	if !c.isClosed() {
		t.Error("display not closed")
	}
	if b.Status() != landing.StatusWaitingForDisplay {
		t.Errorf("status = %v, want waiting for display", b.Status())
	}
}

func TestAdmitDisplayLeavesDuringRefresh(t *testing.T) {
	gw := newFakeGateway()
	b := newTestBroker(t, gw)
	gw.hook = func(name string) {
		if name == FuncGetLandedUsers {
			b.Disconnect("d1")
		}
	}

	d := admitDisplay(t, b, "d1")
	if len(d.only(t, EventAfterConnect)) != 0 {
		t.Error("departed display received after_connect")
	}
	if b.Status() != landing.StatusWaitingForDisplay {
		t.Errorf("status = %v", b.Status())
	}
}

func TestAdmitParticipantDuringDisplayRefresh(t *testing.T) {
	gw := newFakeGateway()
	b := newTestBroker(t, gw)

	var p *fakeConn
	gw.hook = func(name string) {
		if name == FuncGetLandedUsers && p == nil {
			// The display is registered before the refresh, so a participant
			// arriving now is admitted.
			p = admitParticipant(t, b, "p1", `{"_id":"u1"}`)
		}
	}

	d := admitDisplay(t, b, "d1")
	if len(d.only(t, EventPlayerJoin)) != 1 || len(d.only(t, EventAfterConnect)) != 1 {
		t.Errorf("display events = %d, want player_join and after_connect", d.count())
	}
	if p == nil || len(p.only(t, EventAfterConnect)) != 1 {
		t.Fatal("participant not admitted")
	}
	assertCardinality(t, b)
}

func TestAdmitDuplicateID(t *testing.T) {
	b := newTestBroker(t, newFakeGateway())
	admitDisplay(t, b, "d1")

	c := newFakeConn("d1")
	err := b.Admit(context.Background(), c, Handshake{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":"u1"}`})
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("err = %v, want ErrDuplicateConnection", err)
	}
	if !c.isClosed() {
		t.Error("duplicate not closed")
	}
	if b.Status() != landing.StatusWaitingForParticipant {
		t.Errorf("status = %v", b.Status())
	}
}

func TestCardinalityAcrossSequences(t *testing.T) {
	b := newTestBroker(t, newFakeGateway())
	seq := []Handshake{
		{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":"a"}`},
		{ClientType: landing.ClientTypeScreen},
		{ClientType: landing.ClientTypeScreen},
		{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":"b"}`},
		{ClientType: landing.ClientTypeWxApp, UserInfo: `{"_id":"c"}`},
		{ClientType: landing.ClientTypeScreen},
	}
	for i, hs := range seq {
		b.Admit(context.Background(), newFakeConn(string(rune('a'+i))), hs)
		assertCardinality(t, b)
	}
	if b.Status() != landing.StatusOccupied {
		t.Errorf("status = %v, want occupied", b.Status())
	}
}
