package state

import "testing"

func TestNextStateHappyPath(t *testing.T) {
	steps := []struct {
		evt  string
		want string
	}{
		{EvtOpen, StateBetting},
		{EvtLaunch, StateRunning},
		{EvtCrash, StateSettling},
		{EvtComplete, StateCompleted},
	}
	cur := StateInit
	for _, s := range steps {
		next, err := NextState(cur, s.evt)
		if err != nil {
			t.Fatalf("%s --%s--> error: %v", cur, s.evt, err)
		}
		if next != s.want {
			t.Fatalf("%s --%s--> got %s, want %s", cur, s.evt, next, s.want)
		}
		cur = next
	}
	if !IsTerminal(cur) {
		t.Fatalf("expected terminal state, got %s", cur)
	}
}

func TestNextStateCancel(t *testing.T) {
	for _, cur := range []string{StateBetting, StateRunning, StateSettling} {
		next, err := NextState(cur, EvtCancel)
		if err != nil {
			t.Fatalf("cancel from %s: %v", cur, err)
		}
		if next != StateCancelled {
			t.Fatalf("cancel from %s: got %s", cur, next)
		}
	}
	// terminal states cannot be cancelled again
	for _, cur := range []string{StateCompleted, StateCancelled, StateInit} {
		if _, err := NextState(cur, EvtCancel); err == nil {
			t.Fatalf("cancel from %s should fail", cur)
		}
	}
}

func TestNextStateRejectsInvalid(t *testing.T) {
	cases := []struct{ cur, evt string }{
		{StateInit, EvtLaunch},
		{StateInit, EvtCrash},
		{StateBetting, EvtOpen},
		{StateBetting, EvtCrash},
		{StateRunning, EvtLaunch},
		{StateRunning, EvtComplete},
		{StateSettling, EvtCrash},
		{StateCompleted, EvtOpen},
		{StateCancelled, EvtComplete},
	}
	for _, c := range cases {
		next, err := NextState(c.cur, c.evt)
		if err == nil {
			t.Fatalf("%s --%s--> expected error", c.cur, c.evt)
		}
		if next != c.cur {
			t.Fatalf("invalid transition must not move state: %s --%s--> %s", c.cur, c.evt, next)
		}
	}
}

func TestIsOrphanable(t *testing.T) {
	want := map[string]bool{
		StateInit:      false,
		StateBetting:   true,
		StateRunning:   true,
		StateSettling:  true,
		StateCompleted: false,
		StateCancelled: false,
	}
	for s, w := range want {
		if got := IsOrphanable(s); got != w {
			t.Fatalf("IsOrphanable(%s) = %v, want %v", s, got, w)
		}
	}
}
