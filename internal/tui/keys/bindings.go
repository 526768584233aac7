package keys

import "github.com/gdamore/tcell/v2"

// Binding ties a key to an action within a scope ("" is global).
type Binding struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Visible     bool
	Handler     func()
}

// Matches returns true if the event matches this binding.
func (b *Binding) Matches(ev *tcell.EventKey) bool {
	if b.Key != tcell.KeyRune {
		return ev.Key() == b.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == b.Rune
}

type scoped struct {
	scope   string
	binding *Binding
}

// Registry holds keybindings in registration order, so help hints render
// deterministically.
type Registry struct {
	bindings []scoped
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a binding for a scope; use an empty scope for global keys.
func (r *Registry) Add(scope string, b *Binding) {
	r.bindings = append(r.bindings, scoped{scope: scope, binding: b})
}

// Hints returns visible binding descriptions for a scope, scope-specific
// first, then global.
func (r *Registry) Hints(scope string) []string {
	var hints []string
	for _, s := range r.bindings {
		if s.scope == scope && s.binding.Visible {
			hints = append(hints, s.binding.Description)
		}
	}
	for _, s := range r.bindings {
		if s.scope == "" && s.binding.Visible {
			hints = append(hints, s.binding.Description)
		}
	}
	return hints
}

// HandleEvent dispatches a key event, preferring scope-specific bindings
// over global ones. Returns true if a handler ran.
func (r *Registry) HandleEvent(scope string, ev *tcell.EventKey) bool {
	for _, s := range r.bindings {
		if s.scope == scope && s.binding.Matches(ev) {
			s.binding.Handler()
			return true
		}
	}
	for _, s := range r.bindings {
		if s.scope == "" && s.binding.Matches(ev) {
			s.binding.Handler()
			return true
		}
	}
	return false
}
