package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"homechat/internal/chat"
)

// ConversationList is the sidebar table of conversations.
type ConversationList struct {
	*tview.Table
	convs      []chat.Conversation
	selectedFn func() (int, int)
}

func NewConversationList() *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	cl := &ConversationList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the table with new data.
func (cl *ConversationList) Update(convs []chat.Conversation) {
	cl.convs = convs
	cl.Clear()

	// Header row.
	cl.SetCell(0, 0, tview.NewTableCell(" Contact").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Property").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 3, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	now := time.Now()
	for i, conv := range convs {
		row := i + 1
		name := conv.OtherUserName
		if name == "" {
			name = fmt.Sprintf("User %d", conv.OtherUserID)
		}
		if conv.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, conv.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(25).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+conv.PropertyTitle).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 2, tview.NewTableCell(" "+sanitizeForTerminal(conv.LastMessagePreview)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 3, tview.NewTableCell(" "+chat.RelativeTime(conv.LastMessageAt, now)).SetMaxWidth(12))
	}
}

// SelectedConversation returns the id of the highlighted conversation,
// or zero.
func (cl *ConversationList) SelectedConversation() int64 {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.convs) {
		return cl.convs[idx].ID
	}
	return 0
}
