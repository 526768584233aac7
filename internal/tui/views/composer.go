package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages.
type Composer struct {
	*tview.InputField
	onSend func(text string)
}

func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			text := strings.TrimSpace(c.GetText())
			if text != "" {
				c.onSend(text)
				c.SetText("")
			}
		}
	})

	return c
}

// SetOnSend sets the callback when a message is submitted.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}
