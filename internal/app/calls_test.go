package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type callsFixture struct {
	reg   *Registry
	calls *Calls
	conns map[domain.Identity]*fakeConn
}

func newCallsFixture(t *testing.T, timeout time.Duration, regionCheck bool, users map[domain.Identity]domain.Region) *callsFixture {
	t.Helper()
	reg := NewRegistry()
	router := NewRouter(reg, nil)
	f := &callsFixture{
		reg:   reg,
		calls: NewCalls(reg, router, timeout, regionCheck),
		conns: make(map[domain.Identity]*fakeConn),
	}
	for id, region := range users {
		c := &fakeConn{}
		err := reg.Register(&Session{
			ID:       core.SessionID("sid-" + id),
			Identity: id,
			Profile:  domain.Profile{DisplayName: string(id), Geo: domain.Geo{Region: region}},
			Conn:     c,
		})
		if err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		f.conns[id] = c
	}
	t.Cleanup(f.calls.Stop)
	return f
}

func trio() map[domain.Identity]domain.Region {
	return map[domain.Identity]domain.Region{"alice": "", "bob": "", "carol": ""}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func count(types []string, want string) int {
	n := 0
	for _, s := range types {
		if s == want {
			n++
		}
	}
	return n
}

func TestCallRequestAcceptEnd(t *testing.T) {
	f := newCallsFixture(t, time.Minute, false, trio())

	if err := f.calls.Request("alice", "bob", domain.CallVideo); err != nil {
		t.Fatalf("request: %v", err)
	}
	if f.calls.State("alice") != domain.CallRinging || f.calls.State("bob") != domain.CallRinging {
		t.Fatal("both parties should be ringing")
	}
	if f.calls.Kind("bob") != domain.CallVideo {
		t.Fatalf("kind = %q", f.calls.Kind("bob"))
	}
	req := f.conns["bob"].envelopes()
	if len(req) != 1 || req[0]["type"] != "call_request" || req[0]["from"] != "alice" || req[0]["callType"] != "video" {
		t.Fatalf("bob got %v", req)
	}

	if err := f.calls.Accept("bob", "alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if f.calls.State("alice") != domain.CallActive || f.calls.State("bob") != domain.CallActive {
		t.Fatal("both parties should be active")
	}
	if f.calls.Kind("alice") != "" {
		t.Fatal("kind should be cleared once active")
	}
	if peer, ok := f.calls.Peer("alice"); !ok || peer != "bob" {
		t.Fatalf("peer = %q, %v", peer, ok)
	}
	got := f.conns["alice"].envelopes()
	if len(got) != 1 || got[0]["type"] != "call_accepted" || got[0]["from"] != "bob" {
		t.Fatalf("alice got %v", got)
	}

	if err := f.calls.End("alice", "bob"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if f.calls.State("alice") != domain.CallIdle || f.calls.State("bob") != domain.CallIdle {
		t.Fatal("both parties should be idle")
	}
	if types := f.conns["bob"].types(); types[len(types)-1] != "call_ended" {
		t.Fatalf("bob got %v", types)
	}
}

func TestCallRequestErrors(t *testing.T) {
	f := newCallsFixture(t, time.Minute, false, trio())

	cases := []struct {
		name   string
		caller domain.Identity
		callee domain.Identity
		want   error
	}{
		{"self", "alice", "alice", domain.ErrInvalidTarget},
		{"empty", "alice", "", domain.ErrInvalidTarget},
		{"group", "alice", domain.GroupIdentity, domain.ErrInvalidTarget},
		{"offline", "alice", "dave", domain.ErrPeerOffline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.calls.Request(tc.caller, tc.callee, domain.CallAudio)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if f.calls.State(tc.caller) != domain.CallIdle {
				t.Fatal("failed request changed caller state")
			}
		})
	}
}

func TestCallBusy(t *testing.T) {
	f := newCallsFixture(t, time.Minute, false, trio())
	if err := f.calls.Request("alice", "bob", domain.CallVideo); err != nil {
		t.Fatal(err)
	}
	if err := f.calls.Accept("bob", "alice"); err != nil {
		t.Fatal(err)
	}

	if err := f.calls.Request("carol", "bob", domain.CallAudio); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("err = %v, want busy", err)
	}
	if err := f.calls.Request("alice", "carol", domain.CallAudio); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("busy caller: err = %v, want busy", err)
	}
	if f.calls.State("carol") != domain.CallIdle || f.calls.State("bob") != domain.CallActive {
		t.Fatal("busy rejection changed state")
	}
	if len(f.conns["bob"].frames) != 1 {
		t.Fatal("busy callee must not be notified")
	}
}

func TestCallReject(t *testing.T) {
	f := newCallsFixture(t, 50*time.Millisecond, false, trio())
	if err := f.calls.Request("alice", "bob", domain.CallAudio); err != nil {
		t.Fatal(err)
	}
	if err := f.calls.Reject("bob", "carol"); !errors.Is(err, domain.ErrNoCall) {
		t.Fatalf("reject of wrong caller: %v", err)
	}
	if err := f.calls.Reject("bob", "alice"); err != nil {
		t.Fatal(err)
	}
	if f.calls.State("alice") != domain.CallIdle || f.calls.State("bob") != domain.CallIdle {
		t.Fatal("reject should idle both parties")
	}

	time.Sleep(120 * time.Millisecond)
	if n := count(f.conns["alice"].types(), "call_timeout"); n != 0 {
		t.Fatal("timer fired after reject")
	}
	if got := f.conns["alice"].types(); len(got) != 1 || got[0] != "call_rejected" {
		t.Fatalf("alice got %v", got)
	}
}

func TestAcceptRequiresRinging(t *testing.T) {
	f := newCallsFixture(t, time.Minute, false, trio())
	if err := f.calls.Accept("bob", "alice"); !errors.Is(err, domain.ErrNoCall) {
		t.Fatalf("accept without call: %v", err)
	}
	if err := f.calls.Request("alice", "bob", domain.CallAudio); err != nil {
		t.Fatal(err)
	}
	if err := f.calls.Accept("alice", "bob"); !errors.Is(err, domain.ErrNoCall) {
		t.Fatalf("caller accepting own call: %v", err)
	}
	if err := f.calls.End("carol", "alice"); !errors.Is(err, domain.ErrNoCall) {
		t.Fatalf("end by outsider: %v", err)
	}
}

func TestRingTimeoutFiresOnce(t *testing.T) {
	f := newCallsFixture(t, 30*time.Millisecond, false, trio())
	if err := f.calls.Request("alice", "bob", domain.CallVideo); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		return count(f.conns["alice"].types(), "call_timeout") == 1
	})
	time.Sleep(60 * time.Millisecond)

	if n := count(f.conns["alice"].types(), "call_timeout"); n != 1 {
		t.Fatalf("caller got %d call_timeout", n)
	}
	if n := count(f.conns["bob"].types(), "call_timeout"); n != 1 {
		t.Fatalf("callee got %d call_timeout", n)
	}
	if f.calls.State("alice") != domain.CallIdle || f.calls.State("bob") != domain.CallIdle {
		t.Fatal("timeout should idle both parties")
	}
}

func TestAcceptCancelsTimer(t *testing.T) {
	f := newCallsFixture(t, 30*time.Millisecond, false, trio())
	if err := f.calls.Request("alice", "bob", domain.CallAudio); err != nil {
		t.Fatal(err)
	}
	if err := f.calls.Accept("bob", "alice"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(90 * time.Millisecond)
	if f.calls.State("alice") != domain.CallActive {
		t.Fatal("active call was expired by the ring timer")
	}
	if count(f.conns["bob"].types(), "call_timeout") != 0 {
		t.Fatal("call_timeout after accept")
	}
}

func TestStaleTimerDoesNotEndNewCall(t *testing.T) {
	f := newCallsFixture(t, time.Minute, false, trio())
	if err := f.calls.Request("alice", "bob", domain.CallAudio); err != nil {
		t.Fatal(err)
	}
	cl := f.calls.calls["alice"]
	if err := f.calls.End("alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := f.calls.Request("alice", "bob", domain.CallVideo); err != nil {
		t.Fatal(err)
	}

	// A timer of the first call that lost the Stop race.
	f.calls.expire(cl)
	if f.calls.State("alice") != domain.CallRinging {
		t.Fatal("stale timer touched the new call")
	}
}

func TestDepartureEndsPeerCall(t *testing.T) {
	f := newCallsFixture(t, time.Minute, false, trio())
	if err := f.calls.Request("alice", "bob", domain.CallVideo); err != nil {
		t.Fatal(err)
	}
	if err := f.calls.Accept("bob", "alice"); err != nil {
		t.Fatal(err)
	}

	f.reg.Unregister("alice")
	f.calls.OnDeparture("alice", "sid-alice")

	if f.calls.State("bob") != domain.CallIdle {
		t.Fatal("peer left in call")
	}
	env := f.conns["bob"].envelopes()
	last := env[len(env)-1]
	if last["type"] != "call_ended" || last["from"] != "alice" || last["reason"] != "disconnected" {
		t.Fatalf("bob got %v", last)
	}

	f.calls.OnDeparture("carol", "sid-carol")
}

func TestRegionCheck(t *testing.T) {
	users := map[domain.Identity]domain.Region{"alice": "DE", "bob": "FR", "carol": "", "dave": "DE"}

	f := newCallsFixture(t, time.Minute, true, users)
	if err := f.calls.Request("alice", "bob", domain.CallAudio); !errors.Is(err, domain.ErrCountryMismatch) {
		t.Fatalf("err = %v, want country mismatch", err)
	}
	if err := f.calls.Request("alice", "carol", domain.CallAudio); err != nil {
		t.Fatalf("unknown region must not block: %v", err)
	}
	if err := f.calls.Request("dave", "bob", domain.CallAudio); !errors.Is(err, domain.ErrCountryMismatch) {
		t.Fatalf("err = %v, want country mismatch", err)
	}

	off := newCallsFixture(t, time.Minute, false, users)
	if err := off.calls.Request("alice", "bob", domain.CallAudio); err != nil {
		t.Fatalf("region check disabled: %v", err)
	}
}

func TestConcurrentRequestsToSameCallee(t *testing.T) {
	users := map[domain.Identity]domain.Region{}
	callers := []domain.Identity{"c1", "c2", "c3", "c4", "c5", "c6"}
	for _, c := range callers {
		users[c] = ""
	}
	users["bob"] = ""
	f := newCallsFixture(t, time.Minute, false, users)

	var wg sync.WaitGroup
	errs := make(chan error, len(callers))
	for _, c := range callers {
		wg.Add(1)
		go func(c domain.Identity) {
			defer wg.Done()
			errs <- f.calls.Request(c, "bob", domain.CallAudio)
		}(c)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, domain.ErrBusy) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d requests succeeded, want exactly 1", ok)
	}
	if n := count(f.conns["bob"].types(), "call_request"); n != 1 {
		t.Fatalf("bob rang %d times", n)
	}
}

func TestStaleDepartureSparesSuccessorCall(t *testing.T) {
	f := newCallsFixture(t, time.Minute, false, trio())

	// alice reconnects: the old session is gone before its departure runs.
	f.reg.Unregister("alice")
	successor := &fakeConn{}
	if err := f.reg.Register(&Session{ID: "sid-alice-2", Identity: "alice", Conn: successor}); err != nil {
		t.Fatal(err)
	}
	if err := f.calls.Request("alice", "bob", domain.CallAudio); err != nil {
		t.Fatal(err)
	}

	f.calls.OnDeparture("alice", "sid-alice")
	if f.calls.State("alice") != domain.CallRinging || f.calls.State("bob") != domain.CallRinging {
		t.Fatal("stale departure ended the successor's call")
	}
	if count(f.conns["bob"].types(), "call_ended") != 0 {
		t.Fatal("bob told the call ended")
	}

	f.calls.OnDeparture("alice", "sid-alice-2")
	if f.calls.State("bob") != domain.CallIdle {
		t.Fatal("current session departure did not end the call")
	}
}
