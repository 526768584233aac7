package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestScopedBindingWinsOverGlobal(t *testing.T) {
	r := NewRegistry()
	var fired string
	r.Add("", &Binding{Key: tcell.KeyRune, Rune: 'r', Handler: func() { fired = "global" }})
	r.Add("chat", &Binding{Key: tcell.KeyRune, Rune: 'r', Handler: func() { fired = "chat" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("chat", ev) {
		t.Fatal("event not handled")
	}
	if fired != "chat" {
		t.Errorf("fired = %q, want chat", fired)
	}

	if !r.HandleEvent("conversations", ev) {
		t.Fatal("global fallback not handled")
	}
	if fired != "global" {
		t.Errorf("fired = %q, want global", fired)
	}
}

func TestNonRuneKeys(t *testing.T) {
	r := NewRegistry()
	fired := false
	r.Add("", &Binding{Key: tcell.KeyCtrlN, Handler: func() { fired = true }})

	if !r.HandleEvent("", tcell.NewEventKey(tcell.KeyCtrlN, 0, tcell.ModNone)) {
		t.Fatal("ctrl-n not handled")
	}
	if !fired {
		t.Error("handler did not run")
	}
	if r.HandleEvent("", tcell.NewEventKey(tcell.KeyCtrlP, 0, tcell.ModNone)) {
		t.Error("unbound key handled")
	}
}

func TestHintsOrderAndVisibility(t *testing.T) {
	r := NewRegistry()
	r.Add("", &Binding{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true, Handler: func() {}})
	r.Add("chat", &Binding{Key: tcell.KeyRune, Rune: 'r', Description: "r:retry", Visible: true, Handler: func() {}})
	r.Add("chat", &Binding{Key: tcell.KeyRune, Rune: 'x', Description: "hidden", Visible: false, Handler: func() {}})

	hints := r.Hints("chat")
	if len(hints) != 2 || hints[0] != "r:retry" || hints[1] != "q:quit" {
		t.Errorf("hints = %v", hints)
	}
}
