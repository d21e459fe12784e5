package app_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/collabquest/relay/internal/app"
	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// waitForHints polls until conn has seen want notification frames of the given
// presence kind, or fails the test. Presence pushes run on their own goroutine.
func waitForHints(t *testing.T, conn *fakeConn, kind string, want int) []core.NotificationPayload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var got []core.NotificationPayload
		for _, env := range conn.byEvent(t, core.EventNotification) {
			var p core.NotificationPayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				t.Fatalf("notification payload: %v", err)
			}
			if p.Kind == kind {
				got = append(got, p)
			}
		}
		if len(got) >= want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d %q hints, have %d", want, kind, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPresencePushOnFirstConnection(t *testing.T) {
	st := newFakeStore()
	st.contacts["alice"] = []domain.UserID{"bob", "carol"}
	orch := app.NewOrchestrator(st, time.Minute)

	bob := &fakeConn{}
	orch.OnConnect("bob", bob, "tab")

	orch.OnConnect("alice", &fakeConn{}, "tab")

	hints := waitForHints(t, bob, core.KindPresenceOnline, 1)
	if hints[0].RelatedID != "alice" {
		t.Errorf("online hint should name the user who came up, got %q", hints[0].RelatedID)
	}
}

func TestNoPresencePushOnSecondDevice(t *testing.T) {
	st := newFakeStore()
	st.contacts["alice"] = []domain.UserID{"bob"}
	orch := app.NewOrchestrator(st, time.Minute)

	bob := &fakeConn{}
	orch.OnConnect("bob", bob, "tab")

	orch.OnConnect("alice", &fakeConn{}, "laptop")
	waitForHints(t, bob, core.KindPresenceOnline, 1)

	orch.OnConnect("alice", &fakeConn{}, "phone")
	// Give a buggy second push a chance to land before counting.
	time.Sleep(30 * time.Millisecond)
	if got := len(waitForHints(t, bob, core.KindPresenceOnline, 1)); got != 1 {
		t.Errorf("only the first connection announces presence, got %d hints", got)
	}
}

func TestPresenceOfflineOnLastDisconnect(t *testing.T) {
	st := newFakeStore()
	st.contacts["alice"] = []domain.UserID{"bob"}
	orch := app.NewOrchestrator(st, time.Minute)

	bob := &fakeConn{}
	orch.OnConnect("bob", bob, "tab")

	h1 := orch.OnConnect("alice", &fakeConn{}, "laptop")
	h2 := orch.OnConnect("alice", &fakeConn{}, "phone")
	waitForHints(t, bob, core.KindPresenceOnline, 1)

	orch.OnDisconnect(h1)
	time.Sleep(30 * time.Millisecond)
	if hints := bob.byEvent(t, core.EventNotification); len(hints) != 1 {
		t.Fatalf("dropping one of two devices must not announce offline, got %d hints", len(hints))
	}

	orch.OnDisconnect(h2)
	hints := waitForHints(t, bob, core.KindPresenceOffline, 1)
	if hints[0].RelatedID != "alice" {
		t.Errorf("offline hint should name the user who went down, got %q", hints[0].RelatedID)
	}
}

func TestDisconnectHangsUpActiveCall(t *testing.T) {
	st := newFakeStore()
	orch := app.NewOrchestrator(st, time.Minute)

	_ = orch.OnConnect("alice", &fakeConn{}, "tab")
	hBob := orch.OnConnect("bob", &fakeConn{}, "tab")

	orch.Calls.HandleOffer("alice", "bob", offerPayload(domain.CallVideo))
	if len(orch.Calls.Snapshot()) != 1 {
		t.Fatal("expected an active call session")
	}

	orch.OnDisconnect(hBob)
	if len(orch.Calls.Snapshot()) != 0 {
		t.Error("the last disconnect should end the user's calls")
	}
}

func TestEvictionOfLastConnectionEndsCalls(t *testing.T) {
	st := newFakeStore()
	st.contacts["alice"] = []domain.UserID{"bob"}
	orch := app.NewOrchestrator(st, time.Minute)

	aliceConn := &fakeConn{}
	hAlice := orch.OnConnect("alice", aliceConn, "tab")
	bobConn := &fakeConn{}
	orch.OnConnect("bob", bobConn, "tab")

	orch.Calls.HandleOffer("alice", "bob", offerPayload(domain.CallVideo))
	orch.Calls.HandleAnswer("bob", "alice", sdp(webrtc.SDPTypeAnswer, "v=0 answer"))

	// Alice's sole connection wedges; the next send evicts it.
	aliceConn.setFail(true)
	if orch.Registry.SendToUser("alice", core.Frame(`{}`)) {
		t.Fatal("send to a wedged sole connection should fail")
	}

	if got := len(orch.Calls.Snapshot()); got != 0 {
		t.Fatalf("evicting the last connection must end the user's calls, %d still live", got)
	}
	hangs := bobConn.byEvent(t, core.EventHangUp)
	if len(hangs) != 1 {
		t.Fatalf("surviving peer must be notified exactly once, got %d hang-ups", len(hangs))
	}
	if got := decodeHangUp(t, hangs[0]).Reason; got != core.ReasonPeerDisconnected {
		t.Errorf("expected reason %q, got %q", core.ReasonPeerDisconnected, got)
	}
	waitForHints(t, bobConn, core.KindPresenceOffline, 1)

	// The read pump tears the already-evicted handle down later; a no-op.
	orch.OnDisconnect(hAlice)
	if got := len(bobConn.byEvent(t, core.EventHangUp)); got != 1 {
		t.Errorf("peer must not be notified twice, got %d hang-ups", got)
	}
}

func TestOrchestratorWiresAllServices(t *testing.T) {
	orch := app.NewOrchestrator(newFakeStore(), time.Minute)
	if orch.Registry == nil || orch.Presence == nil || orch.Chat == nil || orch.Calls == nil || orch.Notifier == nil {
		t.Fatal("orchestrator must wire every service")
	}
}
