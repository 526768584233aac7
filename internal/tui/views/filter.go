package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Filter is the incremental search input above the conversation list.
type Filter struct {
	*tview.InputField
	onChange func(query string)
	onDone   func()
}

func NewFilter() *Filter {
	input := tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0)

	f := &Filter{InputField: input}

	input.SetChangedFunc(func(text string) {
		if f.onChange != nil {
			f.onChange(text)
		}
	})
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter || key == tcell.KeyEscape {
			if key == tcell.KeyEscape {
				f.SetText("")
				if f.onChange != nil {
					f.onChange("")
				}
			}
			if f.onDone != nil {
				f.onDone()
			}
		}
	})

	return f
}

// SetOnChange sets the callback fired on every keystroke.
func (f *Filter) SetOnChange(fn func(query string)) {
	f.onChange = fn
}

// SetOnDone sets the callback fired when the filter loses focus.
func (f *Filter) SetOnDone(fn func()) {
	f.onDone = fn
}
