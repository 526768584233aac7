package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"homechat/internal/tui/keys"
	"homechat/internal/tui/model"
	"homechat/internal/tui/views"
)

const statsRefreshEvery = 30 * time.Second

// App is the TUI application shell: pages, key routing, and the redraw
// loop driven by the view model.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	vm       *model.ViewModel
	registry *keys.Registry

	statusBar *views.StatusBar
	convList  *views.ConversationList
	filter    *views.Filter
	msgView   *views.MessageView
	composer  *views.Composer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(vm *model.ViewModel, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(),
		filter:    views.NewFilter(),
		msgView:   views.NewMessageView(vm.UserID()),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.Add("", &keys.Binding{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.Add("", &keys.Binding{
		Rune: 'n', Key: tcell.KeyRune,
		Description: "n:clear notifs", Visible: true,
		Handler: func() {
			go func() {
				cleared, err := a.vm.ClearNotifications(a.ctx)
				if err != nil {
					a.vm.Flash.Set("Clear failed: "+err.Error(), 5*time.Second)
					return
				}
				a.vm.Flash.Set(fmt.Sprintf("Cleared %d notifications", cleared), 3*time.Second)
			}()
		},
	})
	a.registry.Add("conversations", &keys.Binding{
		Rune: '/', Key: tcell.KeyRune,
		Description: "/:filter", Visible: true,
		Handler: func() { a.app.SetFocus(a.filter) },
	})
	a.registry.Add("conversations", &keys.Binding{
		Rune: 'R', Key: tcell.KeyRune,
		Description: "R:reload", Visible: true,
		Handler: func() {
			go func() {
				a.vm.ReloadConversations(a.ctx)
				a.app.QueueUpdateDraw(a.redraw)
			}()
		},
	})
	a.registry.Add("chat", &keys.Binding{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:write", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.Add("chat", &keys.Binding{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:retry", Visible: true,
		Handler: func() { a.vm.RetryFailed() },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.SelectedConversation(); id != 0 {
			a.openConversation(id)
		}
	})

	a.filter.SetOnChange(func(query string) {
		a.vm.SetFilter(query)
		a.convList.Update(a.vm.Conversations())
	})
	a.filter.SetOnDone(func() {
		a.app.SetFocus(a.convList)
	})

	a.composer.SetOnSend(func(text string) {
		// Optimistic: the row is in the timeline before Send returns.
		a.vm.Send(text)
		a.msgView.Update(a.vm.TimelineItems())
	})
}

func (a *App) setupLayout() {
	listFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.filter, 1, 0, false).
		AddItem(a.convList, 0, 1, true)

	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("conversations", listFlex, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "chat" {
			a.closeConversation()
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func (a *App) openConversation(id int64) {
	go func() {
		if err := a.vm.OpenConversation(a.ctx, id); err != nil {
			a.vm.Flash.Set("Load failed: "+err.Error(), 5*time.Second)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetConversation(a.vm.ActiveConversation())
			a.msgView.Update(a.vm.TimelineItems())
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.composer.InputField)
			a.redrawStatus()
		})
	}()
}

func (a *App) closeConversation() {
	a.vm.CloseConversation()
	a.pages.SwitchToPage("conversations")
	a.convList.Update(a.vm.Conversations())
	a.app.SetFocus(a.convList)
	a.redrawStatus()
}

// Run starts the TUI and blocks until quit.
func (a *App) Run() error {
	go func() {
		a.vm.ReloadConversations(a.ctx)
		a.app.QueueUpdateDraw(a.redraw)
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(statsRefreshEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-a.vm.RefreshCh():
				a.app.QueueUpdateDraw(a.redraw)
			case <-ticker.C:
				if page, _ := a.pages.GetFrontPage(); page == "conversations" {
					a.vm.ReloadConversations(a.ctx)
				} else {
					_ = a.vm.RefreshStats(a.ctx)
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

func (a *App) redraw() {
	currentPage, _ := a.pages.GetFrontPage()
	switch currentPage {
	case "conversations":
		a.convList.Update(a.vm.Conversations())
	case "chat":
		a.msgView.Update(a.vm.TimelineItems())
	}
	a.redrawStatus()
}

func (a *App) redrawStatus() {
	currentPage, _ := a.pages.GetFrontPage()
	a.statusBar.SetState(a.vm.ConnState())
	a.statusBar.SetStats(a.vm.Stats())
	a.statusBar.SetHints(a.registry.Hints(currentPage))
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
