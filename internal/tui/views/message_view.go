package views

import (
	"fmt"

	"github.com/rivo/tview"

	"homechat/internal/chat"
)

// MessageView renders the active conversation's timeline: date markers,
// messages, and delivery state glyphs for our own messages.
type MessageView struct {
	*tview.TextView
	userID int64
}

func NewMessageView(userID int64) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv, userID: userID}
}

// SetConversation updates the title from the open conversation.
func (mv *MessageView) SetConversation(conv chat.Conversation) {
	title := conv.OtherUserName
	if conv.PropertyTitle != "" {
		title = fmt.Sprintf("%s - %s", conv.OtherUserName, conv.PropertyTitle)
	}
	mv.SetTitle(fmt.Sprintf(" %s ", title))
}

// Update redraws the timeline.
func (mv *MessageView) Update(items []chat.Item) {
	mv.Clear()

	for _, item := range items {
		if item.Marker != "" {
			_, _ = fmt.Fprintf(mv, "[::d]--- %s ---[-:-:-]\n\n", item.Marker)
			continue
		}
		m := item.Message
		sender := m.SenderName
		if m.SenderID == mv.userID {
			sender = "You"
		}
		ts := m.CreatedAt.Format("15:04")
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s %s[-:-:-]\n%s\n\n",
			sender, ts, mv.stateGlyph(m), sanitizeForTerminal(m.Content))
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}

// stateGlyph marks delivery progress on our own messages only.
func (mv *MessageView) stateGlyph(m *chat.Message) string {
	if m.SenderID != mv.userID {
		return ""
	}
	switch m.State {
	case chat.StateSending:
		return "[yellow]…[-]"
	case chat.StateSent:
		return "[green]✓[-]"
	case chat.StateRead:
		return "[blue]✓✓[-]"
	case chat.StateFailed:
		return "[red]! failed[-]"
	default:
		return ""
	}
}
