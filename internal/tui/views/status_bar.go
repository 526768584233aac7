package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"homechat/internal/api"
	"homechat/internal/status"
)

// StatusBar displays the session, connection state, unread counters and
// transient flash messages.
type StatusBar struct {
	*tview.TextView
	session string
	state   status.State
	stats   api.Stats
	hints   []string
	flash   string
}

func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, state: status.StateDisconnected}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(state status.State) {
	sb.state = state
	sb.render()
}

// SetStats updates the unread counters.
func (sb *StatusBar) SetStats(stats api.Stats) {
	sb.stats = stats
	sb.render()
}

// SetHints updates the keybinding hints.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %d unread, %d notifications",
		sb.session, stateLabel(sb.state),
		sb.stats.UnreadMessagesCount, sb.stats.UnreadNotificationsCount)
	if len(sb.hints) > 0 {
		line += " | " + strings.Join(sb.hints, " ")
	}
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}

func stateLabel(s status.State) string {
	switch s {
	case status.StateConnected:
		return "[green]online[-]"
	case status.StateConnecting:
		return "[yellow]connecting[-]"
	case status.StateReconnecting:
		return "[yellow]reconnecting[-]"
	default:
		return "[red]offline[-]"
	}
}
