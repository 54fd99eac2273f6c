package app

import (
	"testing"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

func register(t *testing.T, reg *Registry, id domain.Identity) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	if err := reg.Register(&Session{ID: core.SessionID("sid-" + id), Identity: id, Conn: c}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return c
}

func TestBroadcastExcludesSender(t *testing.T) {
	reg := NewRegistry()
	r := NewRouter(reg, nil)
	alice := register(t, reg, "alice")
	bob := register(t, reg, "bob")
	carol := register(t, reg, "carol")

	res := r.Broadcast(core.Presence{Type: core.KindUserJoined, Username: "alice"}, "alice")
	if res.SendTo != 2 || len(res.Dropped) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(alice.frames) != 0 {
		t.Fatal("sender received its own broadcast")
	}
	if len(bob.frames) != 1 || len(carol.frames) != 1 {
		t.Fatalf("bob=%d carol=%d frames", len(bob.frames), len(carol.frames))
	}
}

func TestDirectSendOfflineIsSilent(t *testing.T) {
	reg := NewRegistry()
	r := NewRouter(reg, nil)
	if r.DirectSend("nobody", core.Control{Type: core.KindPong}) {
		t.Fatal("direct send to offline identity reported success")
	}
}

func TestBackpressurePolicies(t *testing.T) {
	cases := []struct {
		name       string
		policy     Policy
		wantClosed bool
	}{
		{"drop", DropPolicy{}, false},
		{"kick", KickPolicy{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			r := NewRouter(reg, tc.policy)
			slow := register(t, reg, "slow")
			fast := register(t, reg, "fast")
			slow.full = true

			res := r.Broadcast(core.Presence{Type: core.KindUserLeft, Username: "x"}, "")
			if res.SendTo != 1 || len(res.Dropped) != 1 || res.Dropped[0] != "slow" {
				t.Fatalf("unexpected result %+v", res)
			}
			if len(fast.frames) != 1 {
				t.Fatal("fast consumer starved by slow one")
			}
			if slow.isClosed() != tc.wantClosed {
				t.Fatalf("closed = %v, want %v", slow.isClosed(), tc.wantClosed)
			}
		})
	}
}

func TestBroadcastToAdminsSkipsUsers(t *testing.T) {
	reg := NewRegistry()
	r := NewRouter(reg, nil)
	user := register(t, reg, "alice")
	admin := &fakeConn{}
	reg.AddAdmin("adm", admin)

	if n := r.BroadcastToAdmins(core.AdminUserList{Type: core.KindAdminUserList}); n != 1 {
		t.Fatalf("sent to %d admins, want 1", n)
	}
	if len(user.frames) != 0 || len(admin.frames) != 1 {
		t.Fatal("admin list leaked to user or missed admin")
	}
}

func TestPolicyByName(t *testing.T) {
	if _, err := PolicyByName("kick"); err != nil {
		t.Fatal(err)
	}
	if _, err := PolicyByName("maybe"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
